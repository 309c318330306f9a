// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"fmt"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/golang/geo/r3"

	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// TypeORI is the sentence type of an orientation report:
//
//	$HTORI,qx,qy,qz,qw,gx,gy,gz*CS
const TypeORI = "ORI"

// ORI is an orientation sentence sent by a head-tracker bridge.
type ORI struct {
	nmea.BaseSentence
	Quaternion orientation.Quaternion
	Gravity    r3.Vector
}

func newORI(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	p.AssertType(TypeORI)
	m := ORI{
		BaseSentence: s,
		Quaternion: orientation.Quaternion{
			X: p.Float64(0, "qx"),
			Y: p.Float64(1, "qy"),
			Z: p.Float64(2, "qz"),
			W: p.Float64(3, "qw"),
		},
		Gravity: r3.Vector{
			X: p.Float64(4, "gx"),
			Y: p.Float64(5, "gy"),
			Z: p.Float64(6, "gz"),
		},
	}
	return m, p.Err()
}

var sentenceParser = nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		TypeORI: newORI,
	},
}

// ParseSample parses one "$HTORI" line into a sample. Other sentence types
// and bad checksums are errors.
func ParseSample(line string) (imu.Sample, error) {
	sentence, err := sentenceParser.Parse(strings.TrimSpace(line))
	if err != nil {
		return imu.Sample{}, fmt.Errorf("motion: parse sentence: %w", err)
	}
	ori, ok := sentence.(ORI)
	if !ok {
		return imu.Sample{}, fmt.Errorf("motion: unexpected sentence type %q", sentence.DataType())
	}
	q := ori.Quaternion
	if !q.IsFinite() || q.Norm() == 0 {
		return imu.Sample{}, fmt.Errorf("motion: unusable quaternion %+v", q)
	}
	return imu.Sample{Quaternion: q.Normalize(), Gravity: ori.Gravity}, nil
}

// FormatSample renders s as a checksummed "$HTORI" sentence.
func FormatSample(s imu.Sample) string {
	vals := []float64{
		s.Quaternion.X, s.Quaternion.Y, s.Quaternion.Z, s.Quaternion.W,
		s.Gravity.X, s.Gravity.Y, s.Gravity.Z,
	}
	fields := make([]string, 0, len(vals)+1)
	fields = append(fields, "HT"+TypeORI)
	for _, v := range vals {
		fields = append(fields, strconv.FormatFloat(v, 'f', 6, 64))
	}
	body := strings.Join(fields, ",")
	return "$" + body + "*" + nmea.Checksum(body)
}
