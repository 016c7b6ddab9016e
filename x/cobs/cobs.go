// Package cobs implements Consistent Overhead Byte Stuffing.
//
// Encoded output contains no 0x00 bytes, so a single 0x00 can delimit
// frames on a byte stream. The delimiter itself is not part of the
// encoded data handled here; framing layers append/strip it.
package cobs

import (
	"errors"

	"analogkb-go/x/mathx"
)

var (
	ErrTruncated   = errors.New("cobs: truncated group")
	ErrZeroInFrame = errors.New("cobs: zero byte inside frame")
)

// MaxEncodedLen returns the worst-case encoded size for n payload bytes,
// excluding the frame delimiter.
func MaxEncodedLen(n int) int {
	if n == 0 {
		return 1
	}
	return n + int(mathx.CeilDiv(uint32(n), 254)) + 1
}

// Encode stuffs src into dst and returns the encoded length.
// dst must have room for MaxEncodedLen(len(src)) bytes.
func Encode(dst, src []byte) int {
	codeIdx := 0
	code := byte(1)
	n := 1
	for _, b := range src {
		if b == 0 {
			dst[codeIdx] = code
			codeIdx = n
			n++
			code = 1
			continue
		}
		dst[n] = b
		n++
		code++
		if code == 0xFF {
			dst[codeIdx] = code
			codeIdx = n
			n++
			code = 1
		}
	}
	dst[codeIdx] = code
	return n
}

// Decode unstuffs src (one delimiter-free frame) into dst and returns
// the decoded length. dst may alias a buffer of len(src) bytes; decoded
// output is never longer than the input.
func Decode(dst, src []byte) (int, error) {
	n := 0
	i := 0
	for i < len(src) {
		code := src[i]
		if code == 0 {
			return 0, ErrZeroInFrame
		}
		i++
		for j := byte(1); j < code; j++ {
			if i >= len(src) {
				return 0, ErrTruncated
			}
			if src[i] == 0 {
				return 0, ErrZeroInFrame
			}
			dst[n] = src[i]
			n++
			i++
		}
		if code != 0xFF && i < len(src) {
			dst[n] = 0
			n++
		}
	}
	return n, nil
}
