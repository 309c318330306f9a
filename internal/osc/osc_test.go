// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package osc

import (
	"errors"
	"math"
	"net"
	"testing"
	"time"

	gosc "github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/relabs-tech/head_tracker/internal/orientation"
	"github.com/relabs-tech/head_tracker/internal/store"
)

// deviceQuaternion returns the device-frame quaternion whose output-frame
// angles are yaw, pitch and roll in degrees.
func deviceQuaternion(yaw, pitch, roll float64) orientation.Quaternion {
	q := orientation.FromEuler(orientation.DegToRad(yaw), orientation.DegToRad(pitch), orientation.DegToRad(roll))
	return orientation.Quaternion{X: -q.Y, Y: q.X, Z: q.Z, W: q.W}
}

func TestParseTokenVocabulary(t *testing.T) {
	for _, k := range Kinds() {
		tok, err := ParseToken(k.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tok, test.ShouldResemble, Token{Kind: k})

		tok, err = ParseToken("-" + k.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tok, test.ShouldResemble, Token{Kind: k, Negate: true})
		test.That(t, tok.String(), test.ShouldEqual, "-"+k.String())
	}
	test.That(t, Kinds(), test.ShouldHaveLength, 16)
}

func TestParseTokenRejects(t *testing.T) {
	for _, s := range []string{"", "-", "--yaw", "Yaw", "yaw++", "+yaw", "foo", "qW", "rad"} {
		_, err := ParseToken(s)
		test.That(t, errors.Is(err, ErrUnknownToken), test.ShouldBeTrue)
	}
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("  /test/ypr   yaw\t-pitch roll+ ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Address, test.ShouldEqual, "/test/ypr")
	test.That(t, p.Tokens, test.ShouldResemble, []Token{
		{Kind: Yaw},
		{Kind: Pitch, Negate: true},
		{Kind: RollWrapped},
	})
	test.That(t, p.String(), test.ShouldEqual, "/test/ypr yaw -pitch roll+")

	p, err = ParsePattern("/only")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Tokens, test.ShouldBeEmpty)

	_, err = ParsePattern("   ")
	test.That(t, errors.Is(err, ErrEmptyPattern), test.ShouldBeTrue)

	_, err = ParsePattern("yaw pitch")
	test.That(t, errors.Is(err, ErrInvalidAddress), test.ShouldBeTrue)

	_, err = ParsePattern("/x foo")
	test.That(t, errors.Is(err, ErrUnknownToken), test.ShouldBeTrue)
}

func TestValues(t *testing.T) {
	a := NewAttitude(deviceQuaternion(10, 20, -5))
	test.That(t, a.Angles.Yaw, test.ShouldAlmostEqual, orientation.DegToRad(10), 1e-9)
	test.That(t, a.Angles.Pitch, test.ShouldAlmostEqual, orientation.DegToRad(20), 1e-9)
	test.That(t, a.Angles.Roll, test.ShouldAlmostEqual, orientation.DegToRad(-5), 1e-9)

	p, err := ParsePattern("/test/ypr yaw -pitch roll+")
	test.That(t, err, test.ShouldBeNil)
	got := p.Values(a)
	test.That(t, got, test.ShouldHaveLength, 3)
	test.That(t, got[0], test.ShouldAlmostEqual, 10, 1e-9)
	test.That(t, got[1], test.ShouldAlmostEqual, -20, 1e-9)
	test.That(t, got[2], test.ShouldAlmostEqual, 355, 1e-9)
}

func TestEvalAllKinds(t *testing.T) {
	a := Attitude{
		Quaternion: orientation.Quaternion{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9},
		Angles:     orientation.TaitBryan{Yaw: -math.Pi / 2, Pitch: 0.25, Roll: -0.5},
	}
	want := map[Kind]float64{
		Yaw:             -90,
		Pitch:           orientation.RadToDeg(0.25),
		Roll:            orientation.RadToDeg(-0.5),
		YawWrapped:      270,
		PitchWrapped:    orientation.RadToDeg(0.25),
		RollWrapped:     360 + orientation.RadToDeg(-0.5),
		YawRad:          -math.Pi / 2,
		PitchRad:        0.25,
		RollRad:         -0.5,
		YawRadWrapped:   1.5 * math.Pi,
		PitchRadWrapped: 0.25,
		RollRadWrapped:  2*math.Pi - 0.5,
		QuatW:           0.9,
		QuatX:           0.1,
		QuatY:           0.2,
		QuatZ:           0.3,
	}
	test.That(t, want, test.ShouldHaveLength, len(Kinds()))
	for k, v := range want {
		test.That(t, Token{Kind: k}.Eval(a), test.ShouldAlmostEqual, v, 1e-9)
		test.That(t, Token{Kind: k, Negate: true}.Eval(a), test.ShouldAlmostEqual, -v, 1e-9)
	}
}

func TestWrap(t *testing.T) {
	test.That(t, wrap(-5, 360), test.ShouldAlmostEqual, 355, 1e-12)
	test.That(t, wrap(0, 360), test.ShouldEqual, 0)
	test.That(t, wrap(360, 360), test.ShouldEqual, 0)
	test.That(t, wrap(-370, 360), test.ShouldAlmostEqual, 350, 1e-12)
	test.That(t, wrap(-1e-17, 360), test.ShouldEqual, 0)
	test.That(t, wrap(-math.Pi, 2*math.Pi), test.ShouldAlmostEqual, math.Pi, 1e-12)
}

func listen(t *testing.T) (net.PacketConn, int) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

func receive(t *testing.T, conn net.PacketConn, wait time.Duration) (*gosc.Message, error) {
	t.Helper()
	buf := make([]byte, 1024)
	test.That(t, conn.SetReadDeadline(time.Now().Add(wait)), test.ShouldBeNil)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		return nil, err
	}
	pkt, err := gosc.ParsePacket(string(buf[:n]))
	test.That(t, err, test.ShouldBeNil)
	msg, ok := pkt.(*gosc.Message)
	test.That(t, ok, test.ShouldBeTrue)
	return msg, nil
}

func TestSenderEndToEnd(t *testing.T) {
	conn, port := listen(t)
	s := NewSender(store.NewMemory(), zaptest.NewLogger(t).Sugar())
	test.That(t, s.Settings(), test.ShouldResemble, DefaultSettings)
	test.That(t, s.Valid(), test.ShouldBeTrue)

	err := s.SetSettings(Settings{Host: "127.0.0.1", Port: port, Pattern: "/test/ypr yaw -pitch roll+"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Send(deviceQuaternion(10, 20, -5)), test.ShouldBeNil)

	msg, err := receive(t, conn, 2*time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, msg.Address, test.ShouldEqual, "/test/ypr")
	test.That(t, msg.Arguments, test.ShouldHaveLength, 3)
	for i, want := range []float64{10, -20, 355} {
		v, ok := msg.Arguments[i].(float32)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, float64(v), test.ShouldAlmostEqual, want, 1e-3)
	}
}

func TestSenderInvalidPatternSendsNothing(t *testing.T) {
	conn, port := listen(t)
	s := NewSender(store.NewMemory(), zaptest.NewLogger(t).Sugar())
	test.That(t, s.SetPort(port), test.ShouldBeNil)
	test.That(t, s.SetHost("127.0.0.1"), test.ShouldBeNil)

	err := s.SetPattern("/x foo")
	test.That(t, errors.Is(err, ErrUnknownToken), test.ShouldBeTrue)
	test.That(t, s.Valid(), test.ShouldBeFalse)
	test.That(t, s.Settings().Pattern, test.ShouldEqual, "/x foo")

	err = s.Send(orientation.Identity())
	test.That(t, errors.Is(err, ErrInvalidPattern), test.ShouldBeTrue)
	_, err = receive(t, conn, 200*time.Millisecond)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, s.SetPattern("/x qw"), test.ShouldBeNil)
	test.That(t, s.Valid(), test.ShouldBeTrue)
	test.That(t, s.Send(orientation.Identity()), test.ShouldBeNil)
	msg, err := receive(t, conn, 2*time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, msg.Address, test.ShouldEqual, "/x")
	test.That(t, msg.Arguments, test.ShouldResemble, []interface{}{float32(1)})
}

func TestSenderReusesSocket(t *testing.T) {
	conn, port := listen(t)
	s := NewSender(store.NewMemory(), zaptest.NewLogger(t).Sugar())
	defer s.Close()
	test.That(t, s.SetSettings(Settings{Host: "127.0.0.1", Port: port, Pattern: "/x qw"}), test.ShouldBeNil)

	from := func() string {
		buf := make([]byte, 1024)
		test.That(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)), test.ShouldBeNil)
		_, addr, err := conn.ReadFrom(buf)
		test.That(t, err, test.ShouldBeNil)
		return addr.String()
	}

	test.That(t, s.Send(orientation.Identity()), test.ShouldBeNil)
	first := from()
	test.That(t, s.Send(orientation.Identity()), test.ShouldBeNil)
	test.That(t, from(), test.ShouldEqual, first)

	// a new destination gets a new socket
	test.That(t, s.SetPattern("/y qw"), test.ShouldBeNil)
	s.mu.RLock()
	test.That(t, s.conn, test.ShouldBeNil)
	s.mu.RUnlock()
	test.That(t, s.Send(orientation.Identity()), test.ShouldBeNil)
	from()

	test.That(t, s.Close(), test.ShouldBeNil)
	test.That(t, s.Send(orientation.Identity()), test.ShouldBeNil)
	from()
}

func TestSenderUnresolvableHost(t *testing.T) {
	s := NewSender(store.NewMemory(), zaptest.NewLogger(t).Sugar())
	test.That(t, s.SetHost("no-such-host.invalid"), test.ShouldBeNil)
	err := s.Send(orientation.Identity())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "osc: resolve")
}

func TestSenderRejectsBadTransportSettings(t *testing.T) {
	s := NewSender(store.NewMemory(), zaptest.NewLogger(t).Sugar())
	test.That(t, errors.Is(s.SetPort(0), ErrInvalidSettings), test.ShouldBeTrue)
	test.That(t, errors.Is(s.SetPort(70000), ErrInvalidSettings), test.ShouldBeTrue)
	test.That(t, errors.Is(s.SetHost(""), ErrInvalidSettings), test.ShouldBeTrue)
	test.That(t, s.Settings(), test.ShouldResemble, DefaultSettings)
}

func TestSenderSettingsPersisted(t *testing.T) {
	mem := store.NewMemory()
	s := NewSender(mem, zaptest.NewLogger(t).Sugar())
	want := Settings{Host: "studio.local", Port: 9000, Pattern: "/rot qw qx qy qz"}
	test.That(t, s.SetSettings(want), test.ShouldBeNil)

	again := NewSender(mem, zaptest.NewLogger(t).Sugar())
	test.That(t, again.Settings(), test.ShouldResemble, want)
	test.That(t, again.Valid(), test.ShouldBeTrue)

	// an invalid pattern survives a restart and stays invalid
	test.That(t, again.SetPattern("/rot nope"), test.ShouldNotBeNil)
	third := NewSender(mem, zaptest.NewLogger(t).Sugar())
	test.That(t, third.Settings().Pattern, test.ShouldEqual, "/rot nope")
	test.That(t, third.Valid(), test.ShouldBeFalse)
}

func TestCorruptSettingsFallBack(t *testing.T) {
	for _, blob := range []string{"{{{", "host: x\nport: -1\n", "port: 80\n", "- a\n- b\n"} {
		mem := store.NewMemory()
		test.That(t, mem.Save(StoreKey, []byte(blob)), test.ShouldBeNil)
		s := NewSender(mem, zaptest.NewLogger(t).Sugar())
		test.That(t, s.Settings(), test.ShouldResemble, DefaultSettings)
	}
}

func TestSettingsCodec(t *testing.T) {
	data, err := EncodeSettings(DefaultSettings)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "/SceneRotator/ypr yaw pitch roll")

	got, err := DecodeSettings(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, DefaultSettings)
}
