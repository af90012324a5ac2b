package helper

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GenerateUUID creates a random unique UUID string.
func GenerateUUID() string {
	return uuid.NewString()
}

// CreateFolder makes the directory (and parents) if it does not exist.
func CreateFolder(path string) error {
	return os.MkdirAll(path, 0o755)
}

// PrettyPrint writes v as indented JSON to stdout.
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Println(string(b))
}
