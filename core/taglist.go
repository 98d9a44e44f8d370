package emv

import "fmt"

// isTwoByteTagLead reports whether byte b is the first byte of a two-byte
// tag: its low 5 bits are all set (11111), same rule as the TLV parser's
// tag-length decoding.
func isTwoByteTagLead(b byte) bool {
	return b&0x1F == 0x1F
}

// ExpandTagList concatenates, in order, the tag store values named by a
// CDOL/DDOL/Static Data Authentication Tag List: a sequence of (tag, length)
// pairs where tag is one or two bytes. As a shorthand, a one-byte input is
// treated as a single tag whose length is inferred from the stored value
// rather than stated explicitly.
func (s *tagStore) ExpandTagList(tagList []byte) ([]byte, error) {
	if len(tagList) == 0 {
		return nil, nil
	}

	if len(tagList) < 2 {
		tagName := hexUpper(tagList[0:1])
		value, ok := s.get(tagName)
		if !ok {
			return nil, &TagListError{Tag: tagName, Reason: "no value in tag store"}
		}
		return append([]byte{}, value...), nil
	}

	var out []byte
	i := 0
	for i < len(tagList) {
		var tagName string
		var declaredLen int

		if isTwoByteTagLead(tagList[i]) {
			if i+2 >= len(tagList) {
				return nil, fmt.Errorf("taglist: truncated two-byte tag at offset %d", i)
			}
			tagName = hexUpper(tagList[i : i+2])
			declaredLen = int(tagList[i+2])
			i += 3
		} else {
			if i+1 >= len(tagList) {
				return nil, fmt.Errorf("taglist: truncated one-byte tag at offset %d", i)
			}
			tagName = hexUpper(tagList[i : i+1])
			declaredLen = int(tagList[i+1])
			i += 2
		}

		value, ok := s.get(tagName)
		if !ok {
			return nil, &TagListError{Tag: tagName, Reason: "no value in tag store"}
		}
		if len(value) != declaredLen {
			return nil, &TagListError{Tag: tagName, Reason: fmt.Sprintf("stored length %d != list length %d", len(value), declaredLen)}
		}
		out = append(out, value...)
	}

	return out, nil
}
