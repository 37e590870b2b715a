package vmtrace

import (
	"fmt"
	"strings"
)

// Unresolved replaces a class or method name the runtime could not resolve.
const Unresolved = "<unresolved>"

// ClassNameFromSignature turns a reference type signature such as
// "Ljava/lang/String;" into "java/lang/String". Primitive and array
// signatures are returned as is.
func ClassNameFromSignature(sig string) string {
	if len(sig) >= 2 && sig[0] == 'L' && sig[len(sig)-1] == ';' {
		return sig[1 : len(sig)-1]
	}

	return sig
}

// Resolver turns class and method handles into display names.
type Resolver struct {
	env    Env
	dotted bool
}

func NewResolver(env Env, dotted bool) *Resolver {
	return &Resolver{env: env, dotted: dotted}
}

// ClassName resolves the class signature and strips its markers.
func (r *Resolver) ClassName(class Class) (string, error) {
	var name string

	err := withAllocation(
		func() (Allocation, error) { return r.env.ClassSignature(class) },
		func(sig string) { name = ClassNameFromSignature(sig) },
	)
	if err != nil {
		return "", wrapUnresolved("class signature", err)
	}

	return r.Display(name), nil
}

// Display applies the configured separator convention to an internal class
// name such as "java/lang/String".
func (r *Resolver) Display(name string) string {
	if r.dotted {
		return strings.ReplaceAll(name, "/", ".")
	}

	return name
}

// MethodName resolves a method to "<declaring class>.<method>". A failed part
// is replaced by Unresolved and reported through the returned error.
func (r *Resolver) MethodName(method Method) (string, error) {
	var name string

	nameErr := withAllocation(
		func() (Allocation, error) { return r.env.MethodName(method) },
		func(s string) { name = s },
	)
	if nameErr != nil {
		name = Unresolved
		nameErr = wrapUnresolved("method name", nameErr)
	}

	holder := Unresolved

	class, err := r.env.MethodDeclaringClass(method)
	if err != nil {
		err = wrapUnresolved("declaring class", err)
	} else if holder, err = r.ClassName(class); err != nil {
		holder = Unresolved
	}

	full := fmt.Sprintf("%s.%s", holder, name)

	switch {
	case nameErr != nil && err != nil:
		return full, fmt.Errorf("%w; %w", nameErr, err)
	case nameErr != nil:
		return full, nameErr
	default:
		return full, err
	}
}
