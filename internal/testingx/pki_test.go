package testingx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func TestPKI(t *testing.T) {
	pki := MustNewPKI("Example Mail Users CA")

	t.Run("the CA is self signed", func(t *testing.T) {
		if err := pki.CACert.CheckSignatureFrom(pki.CACert); err != nil {
			t.Fatal(err)
		}
	})

	for _, keyType := range []string{KeyTypeRSA, KeyTypeEC, KeyTypeEd25519} {
		t.Run("MustNewClientIdentity with "+keyType, func(t *testing.T) {
			chain, key := pki.MustNewClientIdentity("user-cert-1", keyType)
			if len(chain) != 2 {
				t.Fatal("expected leaf and CA")
			}
			switch key.(type) {
			case *rsa.PrivateKey:
				if keyType != KeyTypeRSA {
					t.Fatal("unexpected RSA key")
				}
			case *ecdsa.PrivateKey:
				if keyType != KeyTypeEC {
					t.Fatal("unexpected EC key")
				}
			case ed25519.PrivateKey:
				if keyType != KeyTypeEd25519 {
					t.Fatal("unexpected Ed25519 key")
				}
			}
			opts := x509.VerifyOptions{
				Roots:     pki.CertPool(),
				KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
			}
			if _, err := chain[0].Verify(opts); err != nil {
				t.Fatal(err)
			}
		})
	}

	t.Run("PEM helpers", func(t *testing.T) {
		chain, key := pki.MustNewClientIdentity("user-cert-2", KeyTypeEC)
		data := MustEncodeChainPEM(chain)
		var count int
		for {
			var block *pem.Block
			block, data = pem.Decode(data)
			if block == nil {
				break
			}
			if block.Type != "CERTIFICATE" {
				t.Fatal("unexpected block", block.Type)
			}
			count++
		}
		if count != 2 {
			t.Fatal("expected two certificates, got", count)
		}
		block, _ := pem.Decode(MustEncodeKeyPEM(key))
		if block == nil || block.Type != "PRIVATE KEY" {
			t.Fatal("expected a PKCS#8 block")
		}
	})
}

func TestPKIServerIdentity(t *testing.T) {
	pki := MustNewPKI("Example Server CA")
	chain, _ := pki.MustNewServerIdentity("mail.example.com", KeyTypeRSA)
	opts := x509.VerifyOptions{
		DNSName: "mail.example.com",
		Roots:   pki.CertPool(),
	}
	if _, err := chain[0].Verify(opts); err != nil {
		t.Fatal(err)
	}
}
