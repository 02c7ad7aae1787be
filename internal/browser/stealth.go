package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"

	"github.com/ibeckermayer/hcrenew/internal/config"
)

// fingerprintTemplate pins the navigator and WebGL identity on top of the
// generic evasions in stealth.JS. Values are JSON encoded before they are
// substituted.
var fingerprintTemplate = template.Must(template.New("fingerprint").Parse(`
(() => {
    const define = (obj, prop, value) => {
        try {
            Object.defineProperty(obj, prop, { get: () => value, configurable: true });
        } catch (e) {}
    };

    define(Navigator.prototype, 'languages', Object.freeze({{.Languages}}));
    define(Navigator.prototype, 'language', {{.Language}});
    define(Navigator.prototype, 'vendor', {{.Vendor}});
    define(Navigator.prototype, 'platform', {{.Platform}});

    const UNMASKED_VENDOR_WEBGL = 0x9245;
    const UNMASKED_RENDERER_WEBGL = 0x9246;
    ['WebGLRenderingContext', 'WebGL2RenderingContext'].forEach((name) => {
        const ctx = window[name];
        if (!ctx) return;
        const getParameter = ctx.prototype.getParameter;
        ctx.prototype.getParameter = function (param) {
            if (param === UNMASKED_VENDOR_WEBGL) return {{.WebGLVendor}};
            if (param === UNMASKED_RENDERER_WEBGL) return {{.WebGLRenderer}};
            return getParameter.call(this, param);
        };
    });
{{if .FixHairline}}
    // Headless Chrome reports no support for 0.5px borders (Modernizr hairline test).
    const offsetHeight = Object.getOwnPropertyDescriptor(HTMLElement.prototype, 'offsetHeight');
    if (offsetHeight && offsetHeight.get) {
        Object.defineProperty(HTMLDivElement.prototype, 'offsetHeight', {
            configurable: true,
            get: function () {
                if (this.id === 'modernizr') return 1;
                return offsetHeight.get.call(this);
            },
        });
    }
{{end}}
})();
`))

// FingerprintScript renders the fingerprint overrides for fp.
func FingerprintScript(fp config.Fingerprint) (string, error) {
	languages := fp.Languages
	if len(languages) == 0 {
		languages = []string{"en-US", "en"}
	}

	data := map[string]any{"FixHairline": fp.FixHairline}
	for key, value := range map[string]any{
		"Languages":     languages,
		"Language":      languages[0],
		"Vendor":        fp.Vendor,
		"Platform":      fp.Platform,
		"WebGLVendor":   fp.WebGLVendor,
		"WebGLRenderer": fp.WebGLRenderer,
	} {
		b, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", key, err)
		}
		data[key] = string(b)
	}

	var buf bytes.Buffer
	if err := fingerprintTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// StealthScripts returns the scripts to install before any page script runs.
func StealthScripts(fp config.Fingerprint) ([]string, error) {
	fingerprint, err := FingerprintScript(fp)
	if err != nil {
		return nil, err
	}
	return []string{stealth.JS, fingerprint}, nil
}

// installScripts registers scripts to run in every new document and frame.
func installScripts(scripts []string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, script := range scripts {
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to install stealth script: %w", err)
			}
		}
		return nil
	})
}
