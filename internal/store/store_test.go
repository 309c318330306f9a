package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestDirRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s, err := NewDir(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Path(), test.ShouldEqual, dir)

	_, err = s.Load("calibration")
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)

	test.That(t, s.Save("calibration", []byte(`{"a":1}`)), test.ShouldBeNil)
	data, err := s.Load("calibration")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, `{"a":1}`)

	test.That(t, s.Save("calibration", []byte("second")), test.ShouldBeNil)
	data, err = s.Load("calibration")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "second")

	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, entries, test.ShouldHaveLength, 1)
}

func TestInvalidKeys(t *testing.T) {
	s, err := NewDir(t.TempDir())
	test.That(t, err, test.ShouldBeNil)
	m := NewMemory()

	for _, key := range []string{"", ".", "..", "a/b", `a\b`} {
		test.That(t, errors.Is(s.Save(key, nil), ErrInvalidKey), test.ShouldBeTrue)
		_, err := s.Load(key)
		test.That(t, errors.Is(err, ErrInvalidKey), test.ShouldBeTrue)
		test.That(t, errors.Is(m.Save(key, nil), ErrInvalidKey), test.ShouldBeTrue)
	}
}

func TestMemoryCopies(t *testing.T) {
	m := NewMemory()
	_, err := m.Load("osc")
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)

	buf := []byte("abc")
	test.That(t, m.Save("osc", buf), test.ShouldBeNil)
	buf[0] = 'z'

	data, err := m.Load("osc")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "abc")

	data[1] = 'z'
	again, _ := m.Load("osc")
	test.That(t, string(again), test.ShouldEqual, "abc")
}
