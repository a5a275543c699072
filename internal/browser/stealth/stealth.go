// Package stealth makes a chromedp tab look like an ordinary desktop browser
// used from Japan: consistent user agent, locale, timezone and viewport, plus
// a script that hides the usual automation tells.
package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

//go:embed evasions.js
var evasionsScript string

// Apply returns the actions that install the persona on the current tab.
// They must run before the first navigation.
func Apply(p schemas.Persona, logger *zap.Logger) chromedp.Tasks {
	p = Normalize(p)
	l := logger.Named("stealth")
	l.Debug("Applying browser persona.",
		zap.String("user_agent", p.UserAgent),
		zap.String("timezone", p.Timezone),
		zap.String("locale", p.Locale),
	)

	return chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": p.AcceptLanguage}),
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(p.AcceptLanguage),
		emulation.SetTimezoneOverride(p.Timezone),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
		emulation.SetDeviceMetricsOverride(p.Width, p.Height, 1.0, p.Mobile),
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := Script(p)
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to add script on new document: %w", err)
			}
			return nil
		}),
	}
}

// Script renders the evasions script with the persona embedded.
func Script(p schemas.Persona) (string, error) {
	personaJSON, err := jsoniter.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("stealth: failed to marshal persona: %w", err)
	}
	return fmt.Sprintf("const FP_PERSONA = %s;\n%s", personaJSON, evasionsScript), nil
}

// Normalize fills unset persona fields from schemas.DefaultPersona and derives
// the Accept-Language header from Languages when it is missing.
func Normalize(p schemas.Persona) schemas.Persona {
	d := schemas.DefaultPersona
	if p.UserAgent == "" {
		p.UserAgent = d.UserAgent
	}
	if p.Platform == "" {
		p.Platform = d.Platform
	}
	if len(p.Languages) == 0 {
		p.Languages = append([]string(nil), d.Languages...)
	}
	if p.Width <= 0 || p.Height <= 0 {
		p.Width, p.Height = d.Width, d.Height
	}
	if p.Timezone == "" {
		p.Timezone = d.Timezone
	}
	if p.Locale == "" {
		p.Locale = p.Languages[0]
	}
	if p.AcceptLanguage == "" {
		p.AcceptLanguage = acceptLanguage(p.Languages)
	}
	return p
}

// acceptLanguage builds "ja-JP,ja;q=0.9,en-US;q=0.8" from a language list.
func acceptLanguage(langs []string) string {
	parts := make([]string, 0, len(langs))
	for i, l := range langs {
		if i == 0 {
			parts = append(parts, l)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", l, q))
	}
	return strings.Join(parts, ",")
}
