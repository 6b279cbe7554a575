package keys

import (
	"crypto/x509"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/openus/go-secproto/lib/algorithm"
)

// Key files hold one line of standard base64 over the PKCS#1 DER encoding.
// Private keys are written 0600, public keys 0644, directories 0700.
const (
	PublicKeySuffix  = ".pub"
	PrivateKeySuffix = ".priv"
)

func (p *PublicKey) Save(path string) error {
	return writeKeyFile(path, x509.MarshalPKCS1PublicKey(p.Key), 0o644)
}

func (p *PrivateKey) Save(path string) error {
	return writeKeyFile(path, x509.MarshalPKCS1PrivateKey(p.Key), 0o600)
}

// Save writes dir/name.pub and dir/name.priv.
func (kp *KeyPair) Save(dir, name string) error {
	if err := kp.Public.Save(filepath.Join(dir, name+PublicKeySuffix)); err != nil {
		return err
	}
	return kp.Private.Save(filepath.Join(dir, name+PrivateKeySuffix))
}

func LoadPublicKey(alg algorithm.AsymmetricType, path string) (*PublicKey, error) {
	der, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}
	k, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, oops.Wrapf(ErrMalformedKey, "%s: %v", path, err)
	}
	if err := checkModulus(alg, k); err != nil {
		return nil, err
	}
	return &PublicKey{Algorithm: alg, Key: k}, nil
}

func LoadPrivateKey(alg algorithm.AsymmetricType, path string) (*PrivateKey, error) {
	der, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}
	k, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, oops.Wrapf(ErrMalformedKey, "%s: %v", path, err)
	}
	if err := checkModulus(alg, &k.PublicKey); err != nil {
		return nil, err
	}
	return &PrivateKey{Algorithm: alg, Key: k}, nil
}

// LoadOrCreateKeyPair loads dir/name.priv, or generates and saves a new pair
// when it does not exist. A present but unreadable file is an error rather
// than a reason to replace the server identity.
func LoadOrCreateKeyPair(alg algorithm.AsymmetricType, dir, name string) (*KeyPair, error) {
	privPath := filepath.Join(dir, name+PrivateKeySuffix)
	priv, err := LoadPrivateKey(alg, privPath)
	if err == nil {
		return &KeyPair{Public: priv.Public(), Private: priv}, nil
	}
	if !errors.Is(err, ErrKeyFileNotFound) {
		return nil, oops.Wrapf(err, "refusing to overwrite existing key %s", privPath)
	}

	log.WithFields(logger.Fields{
		"at":   "keys.LoadOrCreateKeyPair",
		"path": privPath,
	}).Info("creating_new_key_pair")
	kp, err := GenerateKeyPair(alg)
	if err != nil {
		return nil, err
	}
	if err := kp.Save(dir, name); err != nil {
		return nil, err
	}
	return kp, nil
}

func writeKeyFile(path string, der []byte, perm os.FileMode) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return oops.Errorf("failed to create key directory: %w", err)
		}
	}
	data := base64.StdEncoding.EncodeToString(der)
	if err := os.WriteFile(path, []byte(data), perm); err != nil {
		log.WithError(err).WithField("path", path).Error("key_write_failed")
		return oops.Errorf("failed to write key file: %w", err)
	}
	log.WithFields(logger.Fields{
		"at":   "keys.writeKeyFile",
		"path": path,
	}).Debug("key_written")
	return nil
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oops.Wrapf(ErrKeyFileNotFound, "%s", path)
		}
		return nil, oops.Errorf("failed to read key file: %w", err)
	}
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, oops.Wrapf(ErrMalformedKey, "%s: %v", path, err)
	}
	return der, nil
}

