package livereload

import (
	"context"
	"fmt"
	"html/template"

	"impractical.co/docshell"
)

// DefaultPath is where the Hub is usually mounted.
const DefaultPath = "/__livereload"

// maxReconnectAttempts bounds how long a page keeps trying to reach a server
// that went away.
const maxReconnectAttempts = 30

const clientScript = `(() => {
	const protocol = location.protocol === "https:" ? "wss:" : "ws:";
	const url = protocol + "//" + location.host + "%s";
	let attempts = 0;
	function connect() {
		const socket = new WebSocket(url);
		socket.onopen = () => {
			if (attempts > 0) {
				// the server came back, whatever we were showing is stale
				location.reload();
			}
			attempts = 0;
		};
		socket.onmessage = (event) => {
			const message = JSON.parse(event.data);
			if (message.type === "%s") {
				console.info("live reload:", message.reason || "files changed");
				location.reload();
			}
		};
		socket.onclose = (event) => {
			if (event.code === 1000 || attempts >= %d) {
				return;
			}
			attempts++;
			setTimeout(connect, Math.min(250 * attempts, 2000));
		};
	}
	connect();
})();`

// Widget places the live reload client in the document. It connects to a
// Hub mounted at Path and reloads the page whenever the Hub broadcasts, or
// when the server comes back after going away.
type Widget struct {
	// Path is where the Hub is mounted. Defaults to DefaultPath.
	Path string
}

var _ docshell.ScriptLister = Widget{}

// Templates returns nothing; the widget is a script only.
func (Widget) Templates(_ context.Context) []string {
	return nil
}

// Scripts returns the live reload client.
func (w Widget) Scripts(_ context.Context) []docshell.Script {
	p := w.Path
	if p == "" {
		p = DefaultPath
	}
	return []docshell.Script{
		{Inline: template.JS(fmt.Sprintf(clientScript, // #nosec G203
			template.JSEscapeString(p),
			template.JSEscapeString(TypeReload),
			maxReconnectAttempts,
		))},
	}
}
