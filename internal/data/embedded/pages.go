package embedded

import _ "embed"

// IndexTemplate contains the html/template source of the chat page.
//
//go:embed index.html
var IndexTemplate string

// ClientScript contains the browser script that drives the chat page.
//
//go:embed app.js
var ClientScript []byte
