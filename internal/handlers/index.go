package handlers

import "net/http"

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>catwatch</title>
<style>
body { font-family: sans-serif; background: #111; color: #eee; margin: 0; padding: 1rem; }
main { display: flex; gap: 1rem; flex-wrap: wrap; }
img { max-width: 100%; border: 1px solid #333; }
ul { list-style: none; padding: 0; max-height: 80vh; overflow-y: auto; min-width: 18rem; }
li { padding: .25rem 0; border-bottom: 1px solid #222; }
.cat { color: #3c3; } .person { color: #e44; }
</style>
</head>
<body>
<h1>catwatch</h1>
<main>
  <img src="/video" alt="live stream">
  <ul id="events"></ul>
</main>
<script>
const list = document.getElementById("events");
function add(ev) {
  const li = document.createElement("li");
  li.className = ev.label;
  li.textContent = new Date(ev.occurred_at).toLocaleTimeString() + "  " + ev.label.toUpperCase() + " #" + ev.track_id + " " + ev.confidence.toFixed(2);
  list.prepend(li);
}
fetch("/api/events?limit=20").then(r => r.json()).then(d => d.events.reverse().forEach(add));
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/api/view");
ws.onmessage = m => { const msg = JSON.parse(m.data); if (msg.type === "event") add(msg.event); };
</script>
</body>
</html>
`

// IndexHandler serves the live view page: the MJPEG stream next to the event feed.
func IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}
