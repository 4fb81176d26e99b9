package launch

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidPayload is returned by FormPayload.Validate.
var ErrInvalidPayload = errors.New("launch: invalid form payload")

// FormPayload is the token-creation form content. It is read once from
// configuration and not modified during a run.
type FormPayload struct {
	Name        string `json:"name" yaml:"name"`
	Ticker      string `json:"ticker" yaml:"ticker"`
	Description string `json:"description" yaml:"description"`
	ImagePath   string `json:"image_path" yaml:"image_path"`
	Website     string `json:"website,omitempty" yaml:"website"`
	Twitter     string `json:"twitter,omitempty" yaml:"twitter"`
	Telegram    string `json:"telegram,omitempty" yaml:"telegram"`
}

// Validate checks the required fields and that the image file exists.
func (p FormPayload) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.Ticker) == "" {
		missing = append(missing, "ticker")
	}
	if strings.TrimSpace(p.ImagePath) == "" {
		missing = append(missing, "image")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidPayload, strings.Join(missing, ", "))
	}
	info, err := os.Stat(p.ImagePath)
	if err != nil {
		return fmt.Errorf("%w: image: %v", ErrInvalidPayload, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: image %s is a directory", ErrInvalidPayload, p.ImagePath)
	}
	return nil
}
