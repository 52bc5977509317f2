package rcache

import (
	"strconv"
	"strings"
)

// SegmentKind diferencia o papel de cada componente da chave
type SegmentKind uint8

const (
	KindResource SegmentKind = iota + 1 // ex: "betting", "outcomes"
	KindID                              // identificador de recurso
	KindParam                           // filtro nome=valor
)

// Segment é um componente tipado da chave. Dois segmentos são iguais quando
// tipo e valor coincidem, então Resource("x") != ID("x").
type Segment struct {
	Kind  SegmentKind
	Value string
}

func Resource(name string) Segment { return Segment{Kind: KindResource, Value: name} }

func ID(id string) Segment { return Segment{Kind: KindID, Value: id} }

func Param(name, value string) Segment {
	return Segment{Kind: KindParam, Value: name + "=" + value}
}

// Key é uma tupla ordenada de segmentos. Chaves com prefixo comum são invalidadas juntas.
type Key struct {
	segs []Segment
}

func NewKey(segs ...Segment) Key {
	return Key{segs: append([]Segment(nil), segs...)}
}

// Append devolve uma nova chave; o receptor não é alterado
func (k Key) Append(segs ...Segment) Key {
	out := make([]Segment, 0, len(k.segs)+len(segs))
	out = append(out, k.segs...)
	out = append(out, segs...)
	return Key{segs: out}
}

func (k Key) Len() int { return len(k.segs) }

func (k Key) Segments() []Segment { return append([]Segment(nil), k.segs...) }

// HasPrefix compara segmento a segmento. A chave vazia é prefixo de todas.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix.segs) > len(k.segs) {
		return false
	}
	for i, s := range prefix.segs {
		if k.segs[i] != s {
			return false
		}
	}
	return true
}

func (k Key) Equal(other Key) bool {
	return len(k.segs) == len(other.segs) && k.HasPrefix(other)
}

// String é a identidade da chave nos mapas internos. Cada valor leva o
// comprimento na frente, então separadores dentro do valor não geram colisão.
func (k Key) String() string {
	var b strings.Builder
	for _, s := range k.segs {
		b.WriteString(strconv.Itoa(int(s.Kind)))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(s.Value)))
		b.WriteByte(':')
		b.WriteString(s.Value)
		b.WriteByte('/')
	}
	return b.String()
}
