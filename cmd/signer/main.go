// Package main provides the signer command-line tool. It verifies a
// published manifest against its artifacts, or generates a signing key pair.
package main

import (
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"tier0/internal/manifest"
	"tier0/internal/signer"
)

func main() {
	var (
		verifyPath   string
		pubPath      string
		artifactDir  string
		keygenAlg    string
		outPrefix    string
		ageRecipient string
	)

	flags := pflag.NewFlagSet("signer", pflag.ContinueOnError)
	flags.StringVar(&verifyPath, "verify", "", "Manifest to verify against the artifacts next to it")
	flags.StringVar(&pubPath, "pub", "", "Public key (PEM or authorized_keys line); required for signed manifests")
	flags.StringVar(&artifactDir, "dir", "", "Directory holding the artifacts (default: the manifest's directory)")
	flags.StringVar(&keygenAlg, "keygen", "", "Generate a key pair: Ed25519 or RSA-SHA256")
	flags.StringVar(&outPrefix, "out", "tier0-signing", "Output prefix for generated keys (<out>.pem, <out>.pub.pem)")
	flags.StringVar(&ageRecipient, "age-recipient", "", "Encrypt the generated private key to this age recipient")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	var err error

	switch {
	case verifyPath != "" && keygenAlg != "":
		err = errors.New("--verify and --keygen are mutually exclusive")
	case verifyPath != "":
		err = verify(verifyPath, pubPath, artifactDir)
	case keygenAlg != "":
		err = keygen(keygenAlg, outPrefix, ageRecipient)
	default:
		fmt.Println("Usage: signer --verify <manifest.jsonld> [--pub key.pem] | --keygen <alg> [--out prefix]")
		flags.PrintDefaults()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func verify(manifestPath, pubPath, dir string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	m, err := manifest.Parse(data)
	if err != nil {
		return err
	}

	if dir == "" {
		dir = filepath.Dir(manifestPath)
	}

	files := make(map[string][]byte, len(m.Artifacts))

	for _, e := range m.Artifacts {
		content, err := os.ReadFile(filepath.Join(dir, e.Name))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", manifest.ErrArtifactMissing, e.Name, err)
		}

		files[e.Name] = content
	}

	var pub crypto.PublicKey

	if pubPath != "" {
		raw, err := os.ReadFile(pubPath)
		if err != nil {
			return fmt.Errorf("reading public key: %w", err)
		}

		pub, err = signer.ParsePublicKey(raw)
		if err != nil {
			return err
		}
	}

	if err := manifest.Verify(m, files, pub); err != nil {
		return err
	}

	fmt.Printf("✅ %d artifacts match %s\n", len(m.Artifacts), m.OverallDigest)

	switch {
	case pub != nil:
		fmt.Printf("✅ Signature valid (%s, key %s)\n", m.Signature.Algorithm, m.Signature.KeyRef)
	case m.Signed():
		fmt.Println("⚠️  Manifest is signed but no --pub key was given; signature not checked")
	default:
		fmt.Println("ℹ️  Manifest is unsigned")
	}

	return nil
}

func keygen(name, prefix, recipient string) error {
	alg, err := signer.ParseAlgorithm(name)
	if err != nil {
		return err
	}

	key, err := signer.Generate(alg)
	if err != nil {
		return err
	}

	priv, err := signer.MarshalPrivateKey(key)
	if err != nil {
		return err
	}

	pub, err := signer.MarshalPublicKey(key.Public())
	if err != nil {
		return err
	}

	privPath := prefix + ".pem"

	if recipient != "" {
		priv, err = signer.EncryptAge(priv, recipient)
		if err != nil {
			return err
		}

		privPath += ".age"
	}

	if err := os.WriteFile(privPath, priv, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	if err := os.WriteFile(prefix+".pub.pem", pub, 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	ref, err := signer.Fingerprint(key.Public())
	if err != nil {
		return err
	}

	fmt.Printf("🔑 Wrote %s and %s.pub.pem (%s, keyRef %s)\n", privPath, prefix, alg, ref)

	return nil
}
