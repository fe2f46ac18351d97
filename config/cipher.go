package config

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"os"
)

// Environment variables holding the configuration cipher parameters.
const (
	KeyEnv = "CYPHER_KEY"
	IVEnv  = "CYPHER_IV"
)

// Cipher encrypts configuration files with AES in 8-bit CFB mode, the
// segment size used by the files already in circulation.
type Cipher struct {
	block cipher.Block
	iv    []byte
}

// NewCipher builds a Cipher. key must be 16, 24 or 32 bytes and iv 16 bytes.
func NewCipher(key, iv []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("config: cipher key: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("config: cipher IV is %d bytes long, want %d", len(iv), aes.BlockSize)
	}
	return &Cipher{block: block, iv: append([]byte(nil), iv...)}, nil
}

// CipherFromEnv builds a Cipher from CYPHER_KEY and CYPHER_IV.
func CipherFromEnv() (*Cipher, error) {
	key, ok := os.LookupEnv(KeyEnv)
	if !ok {
		return nil, fmt.Errorf("config: environment variable %s is not set", KeyEnv)
	}
	iv, ok := os.LookupEnv(IVEnv)
	if !ok {
		return nil, fmt.Errorf("config: environment variable %s is not set", IVEnv)
	}
	return NewCipher([]byte(key), []byte(iv))
}

func (c *Cipher) Encrypt(plain []byte) []byte {
	out := make([]byte, len(plain))
	newCFB8(c.block, c.iv, false).XORKeyStream(out, plain)
	return out
}

func (c *Cipher) Decrypt(data []byte) []byte {
	out := make([]byte, len(data))
	newCFB8(c.block, c.iv, true).XORKeyStream(out, data)
	return out
}

// cfb8 is CFB with a one byte feedback segment. The shift register takes
// in ciphertext bytes in both directions.
type cfb8 struct {
	block    cipher.Block
	register []byte
	out      []byte
	decrypt  bool
}

var _ cipher.Stream = (*cfb8)(nil)

func newCFB8(block cipher.Block, iv []byte, decrypt bool) *cfb8 {
	return &cfb8{
		block:    block,
		register: append([]byte(nil), iv...),
		out:      make([]byte, block.BlockSize()),
		decrypt:  decrypt,
	}
}

func (x *cfb8) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic(errors.New("config: cfb8 output smaller than input"))
	}
	for i, b := range src {
		x.block.Encrypt(x.out, x.register)
		res := b ^ x.out[0]
		fed := res
		if x.decrypt {
			fed = b
		}
		copy(x.register, x.register[1:])
		x.register[len(x.register)-1] = fed
		dst[i] = res
	}
}
