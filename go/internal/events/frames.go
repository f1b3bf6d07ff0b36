package events

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// DecodeFrames splits a single delivery into its newline-delimited JSON
// records and decodes each one independently. A record that fails to parse
// is logged and skipped so it cannot poison its siblings in the same
// delivery. Returns the decoded envelopes and the number of skipped records.
func DecodeFrames(data []byte) ([]Envelope, int) {
	var out []Envelope
	skipped := 0
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			log.Warn().Err(err).Int("record_bytes", len(line)).Msg("skipping malformed push record")
			skipped++
			continue
		}
		if env.Type == "" {
			log.Warn().Msg("skipping push record without a type tag")
			skipped++
			continue
		}
		out = append(out, env)
	}
	return out, skipped
}
