// Package walletsig assina e verifica mensagens no formato personal_sign (EIP-191).
package walletsig

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrBadSignature = errors.New("walletsig: invalid signature")

// Sign devolve a assinatura 0x-hex de 65 bytes com V em 27/28, como as carteiras fazem.
func Sign(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// Recover devolve o endereço que assinou message.
func Recover(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrBadSignature
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify confere se address assinou message. A comparação ignora o checksum.
func Verify(address, message, signature string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("walletsig: invalid address %q", address)
	}
	got, err := Recover(message, signature)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got.Hex(), common.HexToAddress(address).Hex()) {
		return ErrBadSignature
	}
	return nil
}

// Address normaliza um endereço para minúsculas com 0x
func Address(address string) (string, bool) {
	if !common.IsHexAddress(address) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), true
}
