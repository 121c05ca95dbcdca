package classify

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestClassify_Manifest(t *testing.T) {
	t.Run("react dependency", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "package.json", `{"dependencies":{"react":"^18.2.0","react-dom":"^18.2.0"}}`)

		fw := Classify(ReadManifest(dir), nil, 0)
		assert.Equal(t, React, fw)
	})

	t.Run("next wins over react", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "package.json", `{"dependencies":{"next":"14.0.0","react":"^18.2.0"}}`)

		fw := Classify(ReadManifest(dir), nil, 0)
		assert.Equal(t, NextJS, fw)
	})

	t.Run("angular by marker file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "angular.json", `{}`)

		fw := Classify(ReadManifest(dir), nil, 0)
		assert.Equal(t, Angular, fw)
	})

	t.Run("django by manage.py", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "manage.py", "#!/usr/bin/env python\n")

		fw := Classify(ReadManifest(dir), nil, 0)
		assert.Equal(t, Django, fw)
	})

	t.Run("flask by requirements", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "requirements.txt", "Flask==3.0.0\nrequests\n")

		fw := Classify(ReadManifest(dir), nil, 0)
		assert.Equal(t, Flask, fw)
	})

	t.Run("devDependencies count", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "package.json", `{"devDependencies":{"vite":"^5.0.0"}}`)

		fw := Classify(ReadManifest(dir), nil, 0)
		assert.Equal(t, Vite, fw)
	})

	t.Run("empty dir yields nil manifest", func(t *testing.T) {
		assert.Nil(t, ReadManifest(t.TempDir()))
		assert.Nil(t, ReadManifest(""))
		assert.Nil(t, ReadManifest("/nonexistent/path"))
	})

	t.Run("manifest beats http probe", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "package.json", `{"dependencies":{"vue":"^3.4.0"}}`)
		probe := &HTTPProbe{
			StatusCode: 200,
			Header:     http.Header{"X-Powered-By": []string{"Express"}},
		}

		fw := Classify(ReadManifest(dir), probe, 3000)
		assert.Equal(t, Vue, fw)
	})
}

func TestClassify_HTTPProbe(t *testing.T) {
	t.Run("x-powered-by header", func(t *testing.T) {
		probe := &HTTPProbe{
			StatusCode: 200,
			Header:     http.Header{"X-Powered-By": []string{"Express"}},
		}
		assert.Equal(t, Express, Classify(nil, probe, 0))
	})

	t.Run("angular attribute", func(t *testing.T) {
		probe := &HTTPProbe{
			StatusCode: 200,
			Header:     http.Header{},
			Body:       []byte(`<html><body><app-root ng-version="17.0.0"></app-root></body></html>`),
		}
		assert.Equal(t, Angular, Classify(nil, probe, 0))
	})

	t.Run("vue directive", func(t *testing.T) {
		probe := &HTTPProbe{
			StatusCode: 200,
			Header:     http.Header{},
			Body:       []byte(`<html><body><div v-if="ready">hi</div></body></html>`),
		}
		assert.Equal(t, Vue, Classify(nil, probe, 0))
	})

	t.Run("next asset path", func(t *testing.T) {
		probe := &HTTPProbe{
			StatusCode: 200,
			Header:     http.Header{},
			Body:       []byte(`<html><body><div id="__next"></div><script src="/_next/static/app.js"></script></body></html>`),
		}
		assert.Equal(t, NextJS, Classify(nil, probe, 0))
	})

	t.Run("vite dev client", func(t *testing.T) {
		probe := &HTTPProbe{
			StatusCode: 200,
			Header:     http.Header{},
			Body:       []byte(`<html><head><script type="module" src="/@vite/client"></script></head></html>`),
		}
		assert.Equal(t, Vite, Classify(nil, probe, 0))
	})

	t.Run("substring fallback", func(t *testing.T) {
		probe := &HTTPProbe{
			StatusCode: 200,
			Header:     http.Header{},
			Body:       []byte(`<html><head><title>React App</title></head><body></body></html>`),
		}
		assert.Equal(t, React, Classify(nil, probe, 0))
	})
}

func TestClassify_PortFallback(t *testing.T) {
	assert.Equal(t, Vite, Classify(nil, nil, 5173))
	assert.Equal(t, Angular, Classify(nil, nil, 4200))
	assert.Equal(t, Django, Classify(nil, nil, 8000))
	assert.Equal(t, Unknown, Classify(nil, nil, 8080))
	assert.Equal(t, Unknown, Classify(nil, nil, 0))
}

func TestClassify_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"dependencies":{"react":"^18.0.0"}}`)
	m := ReadManifest(dir)

	first := Classify(m, nil, 3000)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(m, nil, 3000))
	}
}
