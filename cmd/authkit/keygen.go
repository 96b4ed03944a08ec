package main

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/authkit/jwt"
	"github.com/MrEthical07/authkit/secrets"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var (
		method string
		box    bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a PKCS#8 signing key or a secretbox key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if box {
				key, err := secrets.GenerateBoxKey()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			}
			return writeSigningKey(cmd.OutOrStdout(), jwt.SigningMethod(strings.ToLower(method)))
		},
	}
	cmd.Flags().StringVar(&method, "method", string(jwt.MethodES256), "es256 or ed25519")
	cmd.Flags().BoolVar(&box, "box", false, "generate a base64 key for sealing MFA secrets instead")
	return cmd
}

func writeSigningKey(w io.Writer, method jwt.SigningMethod) error {
	var priv crypto.PrivateKey
	switch method {
	case jwt.MethodES256:
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return err
		}
		priv = k
	case jwt.MethodEd25519:
		_, k, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return err
		}
		priv = k
	default:
		return fmt.Errorf("unsupported method %q", method)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}
	return pem.Encode(w, &pem.Block{Type: "PRIVATE KEY", Bytes: der})
}
