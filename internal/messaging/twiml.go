package messaging

import (
	"encoding/xml"
	"net/http"
)

type twimlResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// writeTwiML answers a webhook with a TwiML document. An empty body produces
// an empty <Response/>, which tells Twilio not to reply.
func writeTwiML(w http.ResponseWriter, body string) {
	doc := twimlResponse{}
	if body != "" {
		doc.Messages = []string{body}
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}
