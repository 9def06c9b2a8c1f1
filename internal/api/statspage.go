// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// statsPageHTML is the built-in dashboard served at /. It polls the stats
// endpoints from the browser so the server stays stateless about it.
const statsPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>AgentHive</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2rem auto; max-width: 64rem; color: #222; }
  h1 { font-size: 1.4rem; }
  h2 { font-size: 1.05rem; margin-top: 1.6rem; }
  table { border-collapse: collapse; width: 100%; }
  th, td { text-align: left; padding: 0.3rem 0.6rem; border-bottom: 1px solid #ddd; font-size: 0.9rem; }
  .muted { color: #888; font-size: 0.8rem; }
  #error { color: #b00020; }
</style>
</head>
<body>
<h1>AgentHive</h1>
<p class="muted">Uptime <span id="uptime">-</span> &middot; version <span id="version">-</span> &middot; refreshes every 5s</p>
<p id="error"></p>
<h2>Routing</h2>
<table id="routing"></table>
<h2>Agents</h2>
<table id="agents"></table>
<h2>Cache</h2>
<table id="cache"></table>
<h2>Providers</h2>
<table id="providers"></table>
<script>
function row(k, v) { return "<tr><th>" + k + "</th><td>" + v + "</td></tr>"; }
async function refresh() {
  try {
    const [statsRes, cacheRes] = await Promise.all([
      fetch("/v1/stats"), fetch("/v1/cache/stats")
    ]);
    const body = await statsRes.json();
    const cache = await cacheRes.json();
    const stats = body.stats || {};
    document.getElementById("error").textContent = "";
    document.getElementById("version").textContent = body.version || "-";
    document.getElementById("uptime").textContent = Math.round(stats.uptime_seconds || 0) + "s";

    let routing = row("Total requests", stats.total_requests || 0);
    routing += row("Cache hit rate", ((stats.cache_hit_rate || 0) * 100).toFixed(1) + "%");
    routing += row("Avg confidence", (stats.avg_confidence || 0).toFixed(2));
    const m = stats.by_method || {};
    routing += row("By method", "regex=" + (m.regex || 0) + " llm=" + (m.llm_router || 0) + " fallback=" + (m.fallback || 0));
    const lat = stats.latency || {};
    routing += row("Latency ms (min/avg/max)", (lat.min_ms || 0).toFixed(1) + " / " + (lat.avg_ms || 0).toFixed(1) + " / " + (lat.max_ms || 0).toFixed(1));
    routing += row("Chain", (body.chain || []).join(" → "));
    document.getElementById("routing").innerHTML = routing;

    let agents = "";
    for (const [agent, n] of Object.entries(stats.by_agent || {})) agents += row(agent, n);
    document.getElementById("agents").innerHTML = agents || row("-", "no traffic yet");

    let cacheRows = row("Enabled", cache.enabled);
    if (cache.enabled) {
      cacheRows += row("TTL", cache.ttl_seconds + "s");
      cacheRows += row("L1 entries", cache.l1_entries + " / " + cache.l1_capacity);
      if (cache.backend) cacheRows += row("L2 (" + cache.backend + ")", cache.l2_entries);
    }
    document.getElementById("cache").innerHTML = cacheRows;

    let providers = "";
    const circuits = body.circuit_states || {};
    for (const [name, p] of Object.entries(stats.providers || {})) {
      providers += row(name, p.calls + " calls, " + p.failures + " failures, circuit " + (circuits[name] || "?"));
    }
    document.getElementById("providers").innerHTML = providers || row("-", "no providers configured");
  } catch (err) {
    document.getElementById("error").textContent = "Failed to load stats: " + err;
  }
}
refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>
`

// handleStatsPage serves the built-in dashboard.
func (s *Server) handleStatsPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(statsPageHTML))
}
