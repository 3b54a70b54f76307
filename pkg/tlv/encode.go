package tlv

// Encode serializes the node: tag, length in its shortest form, then the
// value or the encoding of every child in order.
func (n Node) Encode() []byte {
	body := n.body()
	out := make([]byte, 0, len(n.tag)+5+len(body))
	out = append(out, n.tag...)
	out = append(out, EncodeLength(len(body))...)
	return append(out, body...)
}

func (n Node) body() []byte {
	if n.Encoding() == Primitive {
		return n.value
	}
	var body []byte
	for _, p := range n.parts {
		body = append(body, p.Encode()...)
	}
	return body
}

// EncodeLength returns the BER length field for n: one byte below 128,
// otherwise 0x80|k followed by k big-endian bytes with k minimal.
func EncodeLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var raw []byte
	for v := uint64(n); v > 0; v >>= 8 {
		raw = append([]byte{byte(v)}, raw...)
	}
	return append([]byte{0x80 | byte(len(raw))}, raw...)
}

// EncodeAll concatenates the encoding of each node.
func EncodeAll(nodes ...Node) []byte {
	var out []byte
	for _, n := range nodes {
		out = append(out, n.Encode()...)
	}
	return out
}
