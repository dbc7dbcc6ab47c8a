package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"

	"clusterizer/internal/domain/model"
)

// An API key is the standard base64 of the little-endian user id followed by
// HMAC-SHA256(secret, id bytes).
const (
	idLen  = 8
	keyLen = idLen + sha256.Size
)

var ErrMalformedKey = errors.New("malformed api key")

type APIKeys struct {
	secret []byte
}

func NewAPIKeys(secret []byte) *APIKeys {
	return &APIKeys{secret: append([]byte(nil), secret...)}
}

func (k *APIKeys) Encode(userID model.UserID) string {
	buf := make([]byte, idLen, keyLen)
	binary.LittleEndian.PutUint64(buf, uint64(userID))
	buf = append(buf, k.mac(buf)...)
	return base64.StdEncoding.EncodeToString(buf)
}

// Decode returns the user id carried by key if its MAC verifies. It does not
// check that the user exists.
func (k *APIKeys) Decode(key string) (model.UserID, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != keyLen {
		return 0, ErrMalformedKey
	}
	if !hmac.Equal(raw[idLen:], k.mac(raw[:idLen])) {
		return 0, ErrMalformedKey
	}
	return model.UserID(int64(binary.LittleEndian.Uint64(raw[:idLen]))), nil
}

func (k *APIKeys) mac(id []byte) []byte {
	h := hmac.New(sha256.New, k.secret)
	h.Write(id)
	return h.Sum(nil)
}
