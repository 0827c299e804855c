package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTelegram(t *testing.T, h http.HandlerFunc) *Telegram {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	tg := NewTelegram("123:ABC", "-1001", zap.NewNop())
	tg.apiBase = srv.URL
	return tg
}

func TestSendMessage(t *testing.T) {
	var gotPath, gotChat, gotText string
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, tg.SendMessage(context.Background(), "Packer Olena (#007) started work."))
	assert.Equal(t, "/bot123:ABC/sendMessage", gotPath)
	assert.Equal(t, "-1001", gotChat)
	assert.Equal(t, "Packer Olena (#007) started work.", gotText)
}

func TestSendMessage_Non200(t *testing.T) {
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	})

	err := tg.SendMessage(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "chat not found")
}

func TestNotConfigured(t *testing.T) {
	for _, tg := range []*Telegram{
		NewTelegram("", "-1", zap.NewNop()),
		NewTelegram("tok", "", zap.NewNop()),
	} {
		assert.False(t, tg.Configured())
		assert.ErrorIs(t, tg.SendMessage(context.Background(), "x"), ErrNotConfigured)
		assert.ErrorIs(t, tg.SendPhoto(context.Background(), "/nope.jpg", "x"), ErrNotConfigured)
	}
}

func TestSendPhoto(t *testing.T) {
	photo := filepath.Join(t.TempDir(), "4820000000017_2024-05-01_08-01-02.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg-bytes"), 0o644))

	var caption, filename, content string
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:ABC/sendPhoto", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		caption = r.FormValue("caption")
		f, hdr, err := r.FormFile("photo")
		require.NoError(t, err)
		defer f.Close()
		filename = hdr.Filename
		b, _ := io.ReadAll(f)
		content = string(b)
		w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, tg.SendPhoto(context.Background(), photo, "code 4820000000017"))
	assert.Equal(t, "code 4820000000017", caption)
	assert.Equal(t, filepath.Base(photo), filename)
	assert.Equal(t, "jpeg-bytes", content)
}

func TestSendPhoto_MissingFile(t *testing.T) {
	called := false
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	err := tg.SendPhoto(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), "")
	assert.Error(t, err)
	assert.False(t, called)
}

func TestTelegram_ErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	tg := NewTelegram("123:SECRET", "1", zap.NewNop())
	tg.apiBase = base
	err := tg.SendMessage(context.Background(), "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET")
}

func TestDesktop(t *testing.T) {
	var notes, beeps int
	d := NewDesktop(true, zap.NewNop())
	d.notify = func(title, message string) error { notes++; return nil }
	d.beep = func() error { beeps++; return errors.New("no speaker") }

	d.Info("Packer", "Olena")
	d.Alert("Scan failed", "no snapshot")
	assert.Equal(t, 2, notes)
	assert.Equal(t, 1, beeps)

	off := NewDesktop(false, zap.NewNop())
	off.notify = func(string, string) error { t.Fatal("disabled desktop must not notify"); return nil }
	off.beep = func() error { t.Fatal("disabled desktop must not beep"); return nil }
	off.Info("a", "b")
	off.Alert("a", "b")
}
