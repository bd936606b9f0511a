package ui

import (
	"fmt"

	"github.com/atotto/clipboard"
)

// CopyHex puts data on the system clipboard as space separated hex.
func CopyHex(data []byte) error {
	if err := clipboard.WriteAll(fmt.Sprintf("% X", data)); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}
