package content

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// tokenTick is half the lifetime of a form token. A token is accepted during
// the tick it was issued in and the one after.
const tokenTick = 12 * time.Hour

func (s *Service) tokenFor(action string, tick int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(action))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *Service) tick() int64 {
	return s.now().UnixNano() / int64(tokenTick)
}

// FormToken returns a token binding a form submission to action.
func (s *Service) FormToken(action string) string {
	return s.tokenFor(action, s.tick())
}

// VerifyFormToken reports whether token was issued for action and has not expired.
func (s *Service) VerifyFormToken(action, token string) bool {
	if token == "" {
		return false
	}
	tick := s.tick()
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(token), []byte(s.tokenFor(action, t))) {
			return true
		}
	}
	return false
}

// EditAction returns the form action name of the edit screen of a post.
func EditAction(postID int64) string {
	return "update-post_" + strconv.FormatInt(postID, 10)
}

// RestoreAction returns the form action name of restoring a revision.
func RestoreAction(revisionID int64) string {
	return "restore-post_" + strconv.FormatInt(revisionID, 10)
}
