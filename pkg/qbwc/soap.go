// Package qbwc implements the QuickBooks Web Connector side of the bridge:
// parsing the connector's SOAP calls, generating qbXML queries and pushing
// parsed query responses into the target system.
package qbwc

import (
	"encoding/xml"
	"fmt"

	"github.com/pkg/errors"
)

// soapNS is the SOAP 1.1 envelope namespace.
const soapNS = "http://schemas.xmlsoap.org/soap/envelope/"

// qbwcNS is the namespace the web connector uses for its method payloads.
const qbwcNS = "http://developer.intuit.com/"

// call is one decoded web-connector method invocation.
type call struct {
	// Method is the local name of the body element, e.g. "authenticate".
	Method string
	// Inner is the raw XML inside the method element.
	Inner []byte
}

type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Payload anyElement `xml:",any"`
	} `xml:"Body"`
}

type anyElement struct {
	XMLName  xml.Name
	InnerXML []byte `xml:",innerxml"`
}

// parseCall extracts the method invocation from a SOAP request body.
func parseCall(body []byte) (*call, error) {
	var env envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, "parsing SOAP envelope")
	}
	if env.Body.Payload.XMLName.Local == "" {
		return nil, errors.New("SOAP body carries no method element")
	}
	return &call{
		Method: env.Body.Payload.XMLName.Local,
		Inner:  env.Body.Payload.InnerXML,
	}, nil
}

// authenticateParams are the credentials inside an authenticate call.
type authenticateParams struct {
	Username string `xml:"strUserName"`
	Password string `xml:"strPassword"`
}

func parseAuthenticate(inner []byte) (*authenticateParams, error) {
	var params authenticateParams
	if err := unmarshalInner(inner, &params); err != nil {
		return nil, errors.Wrap(err, "parsing authenticate params")
	}
	return &params, nil
}

// receiveResponseParams carry the qbXML response inside a receiveResponseXML
// call.
type receiveResponseParams struct {
	Response string `xml:"response"`
}

func parseReceiveResponse(inner []byte) (*receiveResponseParams, error) {
	var params receiveResponseParams
	if err := unmarshalInner(inner, &params); err != nil {
		return nil, errors.Wrap(err, "parsing receiveResponseXML params")
	}
	return &params, nil
}

// unmarshalInner decodes the children of a method element by wrapping them in
// a synthetic root.
func unmarshalInner(inner []byte, out any) error {
	wrapped := append([]byte("<params>"), inner...)
	wrapped = append(wrapped, []byte("</params>")...)
	return xml.Unmarshal(wrapped, out)
}

// soapResponse renders the result payload into the connector's expected
// {method}Response envelope.
func soapResponse(method, result string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<soap:Envelope xmlns:soap=%q>
    <soap:Body>
        <%sResponse xmlns=%q>
            %s
        </%sResponse>
    </soap:Body>
</soap:Envelope>`, soapNS, method, qbwcNS, result, method)
}
