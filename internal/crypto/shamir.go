package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Share is one piece of a Shamir split: a coordinate in 1..N and the
// evaluated polynomial value at that coordinate for every byte of the
// secret. len(Value) always equals len(secret).
type Share struct {
	Coordinate byte
	Value      []byte
}

// MinShares and MaxShares bound the Shamir (T, N) parameters per the spec:
// 2 <= T <= N <= 10.
const (
	MinShares = 2
	MaxShares = 10
)

// Split divides secret into n shares such that any t of them reconstruct
// the secret exactly, and any t-1 reveal nothing about it. The evaluation
// point 0 holds the secret; coordinates 1..n hold the shares.
func Split(secret []byte, n, t int) ([]Share, error) {
	if t < MinShares || n > MaxShares || t > n {
		return nil, fmt.Errorf("%w: need %d <= threshold <= shares <= %d, got threshold=%d shares=%d",
			ErrInvalidShamirParams, MinShares, MaxShares, t, n)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: secret must not be empty", ErrInvalidShamirParams)
	}

	// One polynomial per byte of the secret, degree t-1, with the constant
	// term fixed to that byte.
	polynomials := make([][]byte, len(secret))
	for i, b := range secret {
		poly := make([]byte, t)
		poly[0] = b
		if _, err := io.ReadFull(rand.Reader, poly[1:]); err != nil {
			return nil, fmt.Errorf("failed to generate polynomial coefficients: %w", err)
		}
		polynomials[i] = poly
	}

	shares := make([]Share, n)
	for coord := 1; coord <= n; coord++ {
		value := make([]byte, len(secret))
		for i, poly := range polynomials {
			value[i] = gf256EvalPoly(poly, byte(coord))
		}
		shares[coord-1] = Share{Coordinate: byte(coord), Value: value}
	}
	return shares, nil
}

// Combine reconstructs the secret from at least t shares using Lagrange
// interpolation at x=0. Shares may be given in any order; duplicate
// coordinates are rejected.
func Combine(shares []Share) ([]byte, error) {
	if len(shares) < MinShares {
		return nil, fmt.Errorf("%w: need at least %d shares, got %d", ErrInvalidShamirParams, MinShares, len(shares))
	}

	seen := make(map[byte]bool, len(shares))
	size := len(shares[0].Value)
	for _, s := range shares {
		if seen[s.Coordinate] {
			return nil, fmt.Errorf("%w: coordinate %d appears twice", ErrDuplicateShare, s.Coordinate)
		}
		if s.Coordinate == 0 {
			return nil, fmt.Errorf("%w: coordinate 0 is reserved for the secret", ErrMalformedShare)
		}
		if len(s.Value) != size {
			return nil, fmt.Errorf("%w: inconsistent share length", ErrMalformedShare)
		}
		seen[s.Coordinate] = true
	}

	secret := make([]byte, size)
	for i := 0; i < size; i++ {
		var acc byte
		for j, sj := range shares {
			num, den := byte(1), byte(1)
			for k, sk := range shares {
				if j == k {
					continue
				}
				num = gf256Mul(num, sk.Coordinate)
				den = gf256Mul(den, gf256Add(sj.Coordinate, sk.Coordinate))
			}
			term := gf256Mul(sj.Value[i], gf256Mul(num, gf256Inv(den)))
			acc = gf256Add(acc, term)
		}
		secret[i] = acc
	}
	return secret, nil
}

// EncodeShare prints a share as coordinate-byte || payload-bytes, the
// fixed-width wire encoding operators see base64'd on the CLI.
func EncodeShare(s Share) []byte {
	out := make([]byte, 1+len(s.Value))
	out[0] = s.Coordinate
	copy(out[1:], s.Value)
	return out
}

// DecodeShare parses the coordinate-byte || payload-bytes encoding,
// rejecting malformed input before it ever reaches the share buffer.
func DecodeShare(raw []byte) (Share, error) {
	if len(raw) < 2 {
		return Share{}, fmt.Errorf("%w: share too short", ErrMalformedShare)
	}
	if raw[0] == 0 {
		return Share{}, fmt.Errorf("%w: coordinate 0 is reserved", ErrMalformedShare)
	}
	value := make([]byte, len(raw)-1)
	copy(value, raw[1:])
	return Share{Coordinate: raw[0], Value: value}, nil
}
