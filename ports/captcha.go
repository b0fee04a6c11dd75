package ports

import "github.com/layer-3/faucet/core"

// Captcha issues and checks human-verification codes.
type Captcha interface {
	Issue() (code string, image core.Image, err error)
	Verify(code, input string) bool
}
