// Package audio turns uploaded WAV payloads into mono float samples at the
// rate the scorer expects, and encodes PCM back into WAV for the simulator.
package audio
