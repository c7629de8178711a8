package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA-256 hashing for one-shot tokens
    "encoding/hex"  // hex encoding and decoding functions
    "errors"
    "strconv"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
    "github.com/google/uuid"
)

// ErrInvalidToken is the single rejection returned by Verify.  Expired,
// tampered and malformed tokens are not distinguished.
var ErrInvalidToken = errors.New("invalid token")

// Token is a signed session token along with its identifiers.
type Token struct {
    Raw string    // the serialized JWT string
    ID  string    // jti, used as the revocation key
    Exp time.Time // the UTC expiration time
}

// Claims are the verified contents of a session token.
type Claims struct {
    UserID uint64
    Email  string
    ID     string
    Exp    time.Time
}

// TokenService issues and verifies HS256 session tokens.  Tokens are not
// persisted; everything needed to validate one travels inside it.
type TokenService struct {
    secret []byte
    ttl    time.Duration
    now    func() time.Time
}

// NewTokenService builds a TokenService signing with secret and issuing
// tokens valid for ttl.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
    return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the validity window of issued tokens.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue builds and signs a token for a user.  The JWT includes the standard
// claims subject (sub), token id (jti), expiration (exp) and issued at
// (iat); email is added when known.
func (s *TokenService) Issue(userID uint64, email string) (Token, error) {
    now := s.now().UTC()
    exp := now.Add(s.ttl)
    jti := uuid.NewString()
    claims := jwt.MapClaims{
        "sub": strconv.FormatUint(userID, 10),
        "jti": jti,
        "exp": exp.Unix(),
        "iat": now.Unix(),
    }
    if email != "" {
        claims["email"] = email
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString(s.secret)
    if err != nil {
        return Token{}, err
    }
    return Token{Raw: signed, ID: jti, Exp: exp}, nil
}

// Verify checks the signature, structure and expiry of raw and returns its
// claims.  Every failure collapses to ErrInvalidToken.
func (s *TokenService) Verify(raw string) (Claims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        // Reject anything that is not HMAC-signed.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return s.secret, nil
    }, jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
    if err != nil || !tok.Valid {
        return Claims{}, ErrInvalidToken
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Claims{}, ErrInvalidToken
    }
    sub, _ := mc["sub"].(string)
    uid, err := strconv.ParseUint(sub, 10, 64)
    if err != nil || uid == 0 {
        return Claims{}, ErrInvalidToken
    }
    out := Claims{UserID: uid}
    out.Email, _ = mc["email"].(string)
    out.ID, _ = mc["jti"].(string)
    if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
        out.Exp = exp.Time
    }
    return out, nil
}

// NewOneShotToken returns a random token to embed in an emailed link and the
// SHA-256 hash stored in its place.
func NewOneShotToken() (raw, hash string, err error) {
    raw, err = RandomHex(32) // 32 bytes -> 64 hex chars
    if err != nil {
        return "", "", err
    }
    return raw, HashToken(raw), nil
}

// HashToken returns the SHA-256 hash of a raw emailed token as a hex string.
// Only the hash is stored so a leaked users table cannot be replayed.
func HashToken(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// RandomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func RandomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
