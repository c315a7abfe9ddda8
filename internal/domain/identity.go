package domain

import (
	"crypto/ed25519"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
)

// Identity represents an authenticated Pioneer.
type Identity struct {
	Username      string `json:"username"`
	WalletAddress string `json:"walletAddress,omitempty"` // Pi account id (G...), optional
	UID           string `json:"uid,omitempty"`
}

// IsZero reports whether the identity carries no username.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(i.Username) == ""
}

// IdentityRecord is a cached identity keyed by a page session token.
// Corresponds to identity_sessions table in PostgreSQL.
type IdentityRecord struct {
	Token           string   // session token issued to the page
	Identity        Identity // cached identity
	AuthenticatedAt int64    // when the wallet authenticated the identity (ms)
}

// Pi account ids use the Stellar StrKey encoding:
// base32(version | ed25519 public key | crc16-xmodem little endian).
const (
	walletAddressLen     = 56
	versionByteAccountID = 6 << 3
)

// ValidateWalletAddress checks that addr is a well-formed Pi account id whose
// payload is a valid ed25519 public key.
func ValidateWalletAddress(addr string) error {
	if len(addr) != walletAddressLen || addr[0] != 'G' {
		return fmt.Errorf("%w: %q", ErrInvalidWalletAddress, addr)
	}

	raw, err := base32.StdEncoding.DecodeString(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWalletAddress, err)
	}
	if len(raw) != 35 || raw[0] != versionByteAccountID {
		return fmt.Errorf("%w: unexpected version byte", ErrInvalidWalletAddress)
	}

	if crc16XModem(raw[:33]) != binary.LittleEndian.Uint16(raw[33:]) {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidWalletAddress)
	}

	if _, err := new(edwards25519.Point).SetBytes(raw[1:33]); err != nil {
		return fmt.Errorf("%w: key is not on curve", ErrInvalidWalletAddress)
	}
	return nil
}

// EncodeWalletAddress encodes an ed25519 public key as a Pi account id.
func EncodeWalletAddress(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", errors.New("public key must be 32 bytes")
	}

	raw := make([]byte, 0, 35)
	raw = append(raw, versionByteAccountID)
	raw = append(raw, pub...)
	raw = binary.LittleEndian.AppendUint16(raw, crc16XModem(raw))
	return base32.StdEncoding.EncodeToString(raw), nil
}

func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
