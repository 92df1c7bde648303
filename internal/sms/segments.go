package sms

// Encoding is the character set an SMS body will be submitted in.
type Encoding string

const (
	EncodingGSM7 Encoding = "gsm7"
	EncodingUCS2 Encoding = "ucs2"
)

// Segment capacities per GSM 03.38 / 03.40.
const (
	gsm7Single = 160
	gsm7Concat = 153
	ucs2Single = 70
	ucs2Concat = 67
)

// SegmentInfo describes how a message body will be split on the wire.
type SegmentInfo struct {
	Encoding   Encoding
	Length     int
	Segments   int
	PerSegment int
}

// gsm7Set is the GSM 7-bit default alphabet.
var gsm7Set = func() map[rune]bool {
	const basic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
		"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"
	set := make(map[rune]bool, len(basic)+10)
	for _, r := range basic {
		set[r] = true
	}
	return set
}()

// gsm7Extended characters cost two septets each.
var gsm7Extended = map[rune]bool{
	'^': true, '{': true, '}': true, '\\': true, '[': true, ']': true, '~': true, '|': true, '€': true,
}

// Segments classifies the body's encoding and computes how many message
// segments it needs. A count above one is a cost signal for the caller, not an
// error.
func Segments(body string) SegmentInfo {
	length := 0
	ucs2 := false
	runes := 0

	for _, r := range body {
		runes++
		switch {
		case gsm7Set[r]:
			length++
		case gsm7Extended[r]:
			length += 2
		default:
			ucs2 = true
		}
	}

	if ucs2 {
		info := SegmentInfo{Encoding: EncodingUCS2, Length: runes, PerSegment: ucs2Single}
		if runes > ucs2Single {
			info.PerSegment = ucs2Concat
		}
		info.Segments = segmentCount(runes, ucs2Single, ucs2Concat)
		return info
	}

	info := SegmentInfo{Encoding: EncodingGSM7, Length: length, PerSegment: gsm7Single}
	if length > gsm7Single {
		info.PerSegment = gsm7Concat
	}
	info.Segments = segmentCount(length, gsm7Single, gsm7Concat)
	return info
}

func segmentCount(length, single, concat int) int {
	if length == 0 {
		return 1
	}
	if length <= single {
		return 1
	}
	return (length + concat - 1) / concat
}
