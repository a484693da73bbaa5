package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.xml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

const validManifest = `<bundle name="keyence">
  <parameters><host>10.0.0.5</host><vendor>acme</vendor></parameters>
  <method name="triggerImage"/>
  <method name="triggerImageObj"><param type="Number" name="object_found"/></method>
  <method name="getObjectPose">
    <param type="RobotPose" name="object_pose"/>
    <param type="int" name="pose_type"/>
  </method>
</bundle>`

func TestRunValidManifest(t *testing.T) {
	var out bytes.Buffer
	ok, err := run(&out, writeManifest(t, validManifest), true, false)
	require.NoError(t, err)
	assert.True(t, ok)

	s := out.String()
	assert.Contains(t, s, "Bundle: keyence")
	assert.Contains(t, s, "OK   all 8 lifecycle methods implemented")
	assert.Contains(t, s, "OK   getObjectPose: signatures match")
	assert.Contains(t, s, `WARN parameter "vendor" is not used`)
	assert.Contains(t, s, "OK   parameters decode")
	assert.Contains(t, s, "Manifest matches the device")
}

func TestRunMismatch(t *testing.T) {
	var out bytes.Buffer
	ok, err := run(&out, writeManifest(t, `<bundle>
  <method name="triggerImage"/>
  <method name="triggerImageObj"><param type="int" name="count"/></method>
</bundle>`), false, true)
	require.NoError(t, err)
	assert.False(t, ok)

	s := out.String()
	assert.Contains(t, s, "FAIL method count: manifest 2, device 3")
	assert.Contains(t, s, "FAIL triggerImageObj: signature mismatch")
	assert.Contains(t, s, "FAIL getObjectPose: implemented but not declared in manifest")
	assert.NotContains(t, s, "OK ")
}

func TestRunBadParameters(t *testing.T) {
	var out bytes.Buffer
	ok, err := run(&out, writeManifest(t, `<bundle><method name="triggerImage"/></bundle>`), true, true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "FAIL parameters:")
}

func TestRunUnreadable(t *testing.T) {
	_, err := run(&bytes.Buffer{}, filepath.Join(t.TempDir(), "none.xml"), false, false)
	assert.Error(t, err)

	_, err = run(&bytes.Buffer{}, writeManifest(t, "<device/>"), false, false)
	assert.Error(t, err)
}
