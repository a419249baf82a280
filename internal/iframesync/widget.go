// Package iframesync keeps an editor or workshop tool that shows the document
// in an iframe in step with it. When framed, the document reports its
// location to the parent window, and follows navigation requests from it.
package iframesync

import (
	"context"
	"fmt"
	"html/template"

	"impractical.co/docshell"
)

// Message types exchanged with the parent window.
const (
	// TypeLocation is posted to the parent whenever the framed document
	// loads or navigates.
	TypeLocation = "docshell:iframe-sync"

	// TypeNavigate is accepted from the parent to move the framed
	// document to another URL on the same origin.
	TypeNavigate = "docshell:navigate"

	// TypeReload is accepted from the parent to reload the framed
	// document.
	TypeReload = "docshell:reload"
)

const bridgeScript = `(() => {
	if (window.parent === window) {
		return;
	}
	const targetOrigin = "%[1]s";
	function report() {
		window.parent.postMessage({
			type: "%[2]s",
			url: location.href,
			title: document.title,
		}, targetOrigin);
	}
	for (const method of ["pushState", "replaceState"]) {
		const original = history[method];
		history[method] = function (...args) {
			const result = original.apply(this, args);
			report();
			return result;
		};
	}
	window.addEventListener("popstate", report);
	window.addEventListener("hashchange", report);
	window.addEventListener("message", (event) => {
		if (targetOrigin !== "*" && event.origin !== targetOrigin) {
			return;
		}
		const data = event.data || {};
		if (data.type === "%[3]s" && typeof data.url === "string") {
			const next = new URL(data.url, location.href);
			if (next.origin === location.origin) {
				location.assign(next.href);
			}
		} else if (data.type === "%[4]s") {
			location.reload();
		}
	});
	if (document.readyState === "loading") {
		document.addEventListener("DOMContentLoaded", report);
	} else {
		report();
	}
})();`

// Widget places the iframe synchronization bridge in the document. Outside
// an iframe the bridge does nothing.
type Widget struct {
	// TargetOrigin restricts which parent origin receives location updates
	// and is allowed to send navigation requests. Defaults to "*".
	TargetOrigin string
}

var _ docshell.ScriptLister = Widget{}

// Templates returns nothing; the widget is a script only.
func (Widget) Templates(_ context.Context) []string {
	return nil
}

// Scripts returns the bridge script.
func (w Widget) Scripts(_ context.Context) []docshell.Script {
	origin := w.TargetOrigin
	if origin == "" {
		origin = "*"
	}
	js := fmt.Sprintf(bridgeScript,
		template.JSEscapeString(origin),
		template.JSEscapeString(TypeLocation),
		template.JSEscapeString(TypeNavigate),
		template.JSEscapeString(TypeReload),
	)
	return []docshell.Script{
		{Inline: template.JS(js)}, // #nosec G203
	}
}
