package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/changefeed/internal/errors"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Created, "Created"},
		{Deleted, "Deleted"},
		{Changed, "Changed"},
		{Renamed, "Renamed"},
		{Kind(3), "Kind(3)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestNewChange_ValidKinds(t *testing.T) {
	for _, kind := range []Kind{Created, Deleted, Changed} {
		t.Run(kind.String(), func(t *testing.T) {
			rec, err := NewChange(kind, "a.txt", "/watched/a.txt")
			require.NoError(t, err)

			assert.Equal(t, kind, rec.Kind())
			assert.Equal(t, "a.txt", rec.Name())
			assert.Equal(t, "/watched/a.txt", rec.FullPath())
			assert.Empty(t, rec.OldName(), "non-rename records never carry an old name")
			assert.Empty(t, rec.OldFullPath(), "non-rename records never carry an old path")
		})
	}
}

func TestNewChange_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		fileName string
		fullPath string
	}{
		{"renamed kind", Renamed, "a.txt", "/watched/a.txt"},
		{"zero kind", Kind(0), "a.txt", "/watched/a.txt"},
		{"combined kinds", Created | Deleted, "a.txt", "/watched/a.txt"},
		{"undefined bit", Kind(16), "a.txt", "/watched/a.txt"},
		{"empty name", Created, "", "/watched/a.txt"},
		{"empty full path", Changed, "a.txt", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChange(tt.kind, tt.fileName, tt.fullPath)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestNewRename(t *testing.T) {
	rec, err := NewRename("old.txt", "/watched/old.txt", "new.txt", "/watched/new.txt")
	require.NoError(t, err)

	assert.Equal(t, Renamed, rec.Kind())
	assert.Equal(t, "new.txt", rec.Name())
	assert.Equal(t, "/watched/new.txt", rec.FullPath())
	assert.Equal(t, "old.txt", rec.OldName())
	assert.Equal(t, "/watched/old.txt", rec.OldFullPath())
}

func TestNewRename_RejectsEmptyFields(t *testing.T) {
	full := [4]string{"old.txt", "/watched/old.txt", "new.txt", "/watched/new.txt"}

	for i := range full {
		args := full
		args[i] = ""
		t.Run(full[i], func(t *testing.T) {
			_, err := NewRename(args[0], args[1], args[2], args[3])
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
		})
	}
}

func TestRecord_String(t *testing.T) {
	changed, err := NewChange(Changed, "a.txt", "/watched/a.txt")
	require.NoError(t, err)
	renamed, err := NewRename("old.txt", "/watched/old.txt", "new.txt", "/watched/new.txt")
	require.NoError(t, err)

	assert.Equal(t, "Changed a.txt", changed.String())
	assert.Equal(t, `Renamed "old.txt" to "new.txt"`, renamed.String())
}

func TestChangeMask(t *testing.T) {
	mask := MaskOf(Created, Deleted)

	assert.True(t, mask.Valid())
	assert.True(t, mask.Has(Created))
	assert.True(t, mask.Has(Deleted))
	assert.False(t, mask.Has(Changed))
	assert.False(t, mask.Has(Renamed))
	assert.False(t, mask.Has(Created|Deleted), "only single kinds are members")
	assert.Equal(t, []Kind{Created, Deleted}, mask.Kinds())
	assert.Equal(t, "Created|Deleted", mask.String())

	assert.False(t, ChangeMask(0).Valid())
	assert.False(t, ChangeMask(0xF0).Valid(), "undefined bits select nothing")
	assert.Empty(t, ChangeMask(0xF0).Kinds())
	assert.Equal(t, "none", ChangeMask(0).String())
	assert.Equal(t, []Kind{Created, Deleted, Changed, Renamed}, MaskAll.Kinds())
}

func TestParseChangeMask(t *testing.T) {
	tests := []struct {
		input string
		want  ChangeMask
	}{
		{"all", MaskAll},
		{"created", MaskOf(Created)},
		{"Created, Renamed", MaskOf(Created, Renamed)},
		{"deleted,changed,", MaskOf(Deleted, Changed)},
		{"ALL,created", MaskAll},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseChangeMask(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChangeMask_Invalid(t *testing.T) {
	for _, input := range []string{"", " , ", "moved", "created,bogus"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseChangeMask(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
		})
	}
}
