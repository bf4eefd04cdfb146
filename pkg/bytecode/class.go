package bytecode

// Access flags
const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccProtected  = 0x0004
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccSuper      = 0x0020
	AccVarargs    = 0x0080
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000
)

// ClassFile is the unassembled form of one class: structure plus live
// constant pool entries, with no indices assigned yet.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	AccessFlags  uint16
	ThisClass    *Class
	SuperClass   *Class // nil only for java/lang/Object
	Interfaces   []*Class
	Fields       []*Member
	Methods      []*Member
	Attributes   []Attribute
}

// Member is a field_info or method_info.
type Member struct {
	AccessFlags uint16
	Name        *UTF8
	Descriptor  *UTF8
	Attributes  []Attribute
}

// NewMember creates a field or method.
func NewMember(access uint16, name, descriptor string, attrs ...Attribute) *Member {
	return &Member{
		AccessFlags: access,
		Name:        NewUTF8(name),
		Descriptor:  NewUTF8(descriptor),
		Attributes:  attrs,
	}
}

// Name returns the internal name of the class, or "" when ThisClass is unset.
func (cf *ClassFile) Name() string {
	if cf.ThisClass == nil {
		return ""
	}
	return utf8Text(cf.ThisClass.Name)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *Member {
	for _, m := range cf.Methods {
		if utf8Text(m.Name) == name && utf8Text(m.Descriptor) == descriptor {
			return m
		}
	}
	return nil
}
