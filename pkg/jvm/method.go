package jvm

// Java access modifier bits, as reported by the class file format.
const (
	ModPublic    = 0x0001
	ModPrivate   = 0x0002
	ModProtected = 0x0004
	ModStatic    = 0x0008
	ModFinal     = 0x0010
	ModNative    = 0x0100
)

// Method describes one method of a debuggee class: where it was declared,
// its name, its erased JVM signature string ("(ILjava/lang/String;)V") and
// modifier bits. Metadata entries and overload resolution both work on this
// descriptor; binding it to an invocable handle is the method caller's job.
type Method struct {
	Class     Signature // declaring class
	Name      string
	Signature string
	Modifiers int
}

// IsStatic reports whether the method is declared static.
func (m Method) IsStatic() bool {
	return m.Modifiers&ModStatic != 0
}

// ParseSignature splits the erased JVM signature into argument signatures
// and the return signature. ok is false on malformed input.
func (m Method) ParseSignature() (args []Signature, ret Signature, ok bool) {
	s := m.Signature
	if len(s) < 3 || s[0] != '(' {
		return nil, Signature{}, false
	}
	i := 1
	for i < len(s) && s[i] != ')' {
		start := i
		for i < len(s) && s[i] == '[' {
			i++
		}
		if i >= len(s) {
			return nil, Signature{}, false
		}
		if s[i] == 'L' {
			for i < len(s) && s[i] != ';' {
				i++
			}
			if i >= len(s) {
				return nil, Signature{}, false
			}
		}
		i++
		sig, valid := FromDescriptor(s[start:i])
		if !valid {
			return nil, Signature{}, false
		}
		args = append(args, sig)
	}
	if i >= len(s) || s[i] != ')' {
		return nil, Signature{}, false
	}
	ret, okRet := FromDescriptor(s[i+1:])
	if !okRet {
		return nil, Signature{}, false
	}
	return args, ret, true
}
