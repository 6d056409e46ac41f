// internal/crsf/channels.go
package crsf

// ---- CHANNEL CODEC ----

// On the wire each of the 16 channels is an 11-bit unsigned code packed
// little-endian bit-stream order into 22 bytes. The nominal servo range
// 1000..2000 us maps onto codes 191..1792 (992 is mid, 1500 us).
const (
	NumChannels = 16

	ChannelCode1000 = 191
	ChannelCode1500 = 992
	ChannelCode2000 = 1792

	ChannelsPayloadLen = 22

	codeSpan = ChannelCode2000 - ChannelCode1000
)

// decodeCode converts an 11-bit channel code into microseconds, rounding to
// nearest. Codes outside 191..1792 are clamped first.
func decodeCode(code int) int {
	if code < ChannelCode1000 {
		code = ChannelCode1000
	}
	if code > ChannelCode2000 {
		code = ChannelCode2000
	}
	return 1000 + ((code-ChannelCode1000)*1000+codeSpan/2)/codeSpan
}

// encodeUs converts microseconds into an 11-bit channel code. Plain
// round-to-nearest can land one code away from the exact preimage, so the
// candidate is decoded back and nudged by one toward the target when that
// restores identity. Every integer us in 1000..2000 round-trips exactly.
func encodeUs(us int) int {
	if us < 1000 {
		us = 1000
	}
	if us > 2000 {
		us = 2000
	}
	code := ChannelCode1000 + ((us-1000)*codeSpan+500)/1000
	if code > ChannelCode2000 {
		code = ChannelCode2000
	}
	if code < ChannelCode1000 {
		code = ChannelCode1000
	}
	d := decodeCode(code)
	if d < us && code < ChannelCode2000 {
		if decodeCode(code+1) == us {
			code++
		}
	} else if d > us && code > ChannelCode1000 {
		if decodeCode(code-1) == us {
			code--
		}
	}
	return code
}

// PackChannels encodes 16 channel values (microseconds, clamped to
// 1000..2000) into the RC_CHANNELS_PACKED payload.
func PackChannels(us [NumChannels]int) [ChannelsPayloadLen]byte {
	var out [ChannelsPayloadLen]byte
	bitPos := 0
	for i := 0; i < NumChannels; i++ {
		code := encodeUs(us[i])
		for b := 0; b < 11; b++ {
			if code&(1<<b) != 0 {
				out[bitPos/8] |= 1 << (bitPos % 8)
			}
			bitPos++
		}
	}
	return out
}

// UnpackChannels decodes an RC_CHANNELS_PACKED payload into microseconds.
func UnpackChannels(payload [ChannelsPayloadLen]byte) [NumChannels]int {
	var us [NumChannels]int
	bitPos := 0
	for i := 0; i < NumChannels; i++ {
		code := 0
		for b := 0; b < 11; b++ {
			if payload[bitPos/8]&(1<<(bitPos%8)) != 0 {
				code |= 1 << b
			}
			bitPos++
		}
		us[i] = decodeCode(code)
	}
	return us
}
