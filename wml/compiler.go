/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package wml compiles WML source decks into their WBXML binary form
// (text/vnd.wap.wml -> application/vnd.wap.wmlc).
//
// Element names from the WML 1.1 token table are emitted as single
// tokens; anything else (and every attribute name) goes through the
// document string table as a LITERAL.  Text is emitted as inline
// strings in UTF-8.
package wml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

const (
	// MediaType is the source content type.
	MediaType = "text/vnd.wap.wml"

	// CompiledType is the produced content type.
	CompiledType = "application/vnd.wap.wmlc"
)

// WBXML global tokens.
const (
	tokEnd       = 0x01
	tokStrI      = 0x03
	tokLiteral   = 0x04
	tokLiteralC  = 0x44
	tokLiteralA  = 0x84
	tokLiteralAC = 0xC4

	flagContent = 0x40
	flagAttrs   = 0x80

	wbxmlVersion = 0x01 // WBXML 1.1
	publicIDWML  = 0x04 // "-//WAPFORUM//DTD WML 1.1//EN"
)

// tagTokens is the WML 1.1 tag code page.
var tagTokens = map[string]byte{
	"pre":       0x1B,
	"a":         0x1C,
	"td":        0x1D,
	"tr":        0x1E,
	"table":     0x1F,
	"p":         0x20,
	"postfield": 0x21,
	"anchor":    0x22,
	"access":    0x23,
	"b":         0x24,
	"big":       0x25,
	"br":        0x26,
	"card":      0x27,
	"do":        0x28,
	"em":        0x29,
	"fieldset":  0x2A,
	"go":        0x2B,
	"head":      0x2C,
	"i":         0x2D,
	"img":       0x2E,
	"input":     0x2F,
	"meta":      0x30,
	"noop":      0x31,
	"prev":      0x32,
	"onevent":   0x33,
	"optgroup":  0x34,
	"option":    0x35,
	"refresh":   0x36,
	"select":    0x37,
	"small":     0x38,
	"strong":    0x39,
	"template":  0x3B,
	"timer":     0x3C,
	"u":         0x3D,
	"setvar":    0x3E,
	"wml":       0x3F,
}

// charsetMIB maps the charsets we accept to their IANA MIBenum values
// for the WBXML header.
var charsetMIB = map[string]uint32{
	"US-ASCII":     3,
	"ISO-8859-1":   4,
	"ISO-8859-2":   5,
	"ISO-8859-15":  111,
	"KOI8-R":       2084,
	"WINDOWS-1250": 2250,
	"WINDOWS-1252": 2252,
	"UTF-8":        106,
}

var charsetNames = []string{
	"UTF-8", "US-ASCII", "ISO-8859-1", "ISO-8859-2",
	"ISO-8859-15", "KOI8-R", "WINDOWS-1250", "WINDOWS-1252",
}

// Charsets lists the charsets the compiler can transcode, for the
// Accept-Charset headers the fetch pipeline synthesizes.
func Charsets() []string {
	acc := make([]string, len(charsetNames))
	copy(acc, charsetNames)
	return acc
}

// node is one parsed element.  Kids are *node or string (text).
type node struct {
	name  string
	attrs []xml.Attr
	kids  []interface{}
}

// Compile turns a WML deck into WBXML.  The charset names the source
// encoding; empty means UTF-8.
func Compile(src []byte, charset string) ([]byte, error) {
	utf8src, err := toUTF8(src, charset)
	if err != nil {
		return nil, err
	}

	root, err := parse(utf8src)
	if err != nil {
		return nil, err
	}
	if root.name != "wml" {
		return nil, fmt.Errorf("root element is <%s>, not <wml>", root.name)
	}

	var strtbl bytes.Buffer
	offsets := map[string]uint32{}
	collectLiterals(root, &strtbl, offsets)

	var out bytes.Buffer
	out.WriteByte(wbxmlVersion)
	writeMBUint32(&out, publicIDWML)
	writeMBUint32(&out, 106) // compiled text is always UTF-8
	writeMBUint32(&out, uint32(strtbl.Len()))
	out.Write(strtbl.Bytes())

	if err := compileNode(&out, root, offsets); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

// toUTF8 decodes src from the named charset.  Only the charsets we
// advertise via Charsets are accepted.
func toUTF8(src []byte, charset string) ([]byte, error) {
	if charset == "" || strings.EqualFold(charset, "UTF-8") {
		return src, nil
	}
	if _, have := charsetMIB[strings.ToUpper(charset)]; !have {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return enc.NewDecoder().Bytes(src)
}

// parse reads the deck into a node tree, skipping the prolog, comments,
// and processing instructions.
func parse(src []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(src))
	dec.Strict = true
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := ianaindex.IANA.Encoding(charset)
		if err != nil || enc == nil {
			return nil, fmt.Errorf("unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var root *node
	stack := make([]*node, 0, 8)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{
				name:  strings.ToLower(t.Name.Local),
				attrs: t.Attr,
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("multiple root elements")
				}
				root = n
			} else {
				top := stack[len(stack)-1]
				top.kids = append(top.kids, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("unbalanced element end")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			top := stack[len(stack)-1]
			top.kids = append(top.kids, text)
		}
	}

	if root == nil {
		return nil, errors.New("no root element")
	}
	if len(stack) != 0 {
		return nil, errors.New("unterminated element")
	}
	return root, nil
}

// collectLiterals walks the tree and assigns string-table offsets to
// every name that can't be tokenized.
func collectLiterals(n *node, strtbl *bytes.Buffer, offsets map[string]uint32) {
	intern := func(s string) {
		if _, have := offsets[s]; have {
			return
		}
		offsets[s] = uint32(strtbl.Len())
		strtbl.WriteString(s)
		strtbl.WriteByte(0)
	}

	if _, have := tagTokens[n.name]; !have {
		intern(n.name)
	}
	for _, a := range n.attrs {
		intern(strings.ToLower(a.Name.Local))
	}
	for _, kid := range n.kids {
		if k, is := kid.(*node); is {
			collectLiterals(k, strtbl, offsets)
		}
	}
}

func compileNode(out *bytes.Buffer, n *node, offsets map[string]uint32) error {
	var (
		hasAttrs   = 0 < len(n.attrs)
		hasContent = 0 < len(n.kids)
	)

	if tok, have := tagTokens[n.name]; have {
		if hasAttrs {
			tok |= flagAttrs
		}
		if hasContent {
			tok |= flagContent
		}
		out.WriteByte(tok)
	} else {
		tok := byte(tokLiteral)
		switch {
		case hasAttrs && hasContent:
			tok = tokLiteralAC
		case hasAttrs:
			tok = tokLiteralA
		case hasContent:
			tok = tokLiteralC
		}
		out.WriteByte(tok)
		writeMBUint32(out, offsets[n.name])
	}

	if hasAttrs {
		for _, a := range n.attrs {
			out.WriteByte(tokLiteral)
			writeMBUint32(out, offsets[strings.ToLower(a.Name.Local)])
			writeStrI(out, a.Value)
		}
		out.WriteByte(tokEnd)
	}

	if hasContent {
		for _, kid := range n.kids {
			switch k := kid.(type) {
			case *node:
				if err := compileNode(out, k, offsets); err != nil {
					return err
				}
			case string:
				writeStrI(out, k)
			}
		}
		out.WriteByte(tokEnd)
	}

	return nil
}

func writeStrI(out *bytes.Buffer, s string) {
	out.WriteByte(tokStrI)
	out.WriteString(s)
	out.WriteByte(0)
}

// writeMBUint32 emits a multi-byte unsigned integer: 7 bits per octet,
// high bit set on all but the last.
func writeMBUint32(out *bytes.Buffer, v uint32) {
	var bs [5]byte
	i := len(bs) - 1
	bs[i] = byte(v & 0x7F)
	for v >>= 7; v != 0; v >>= 7 {
		i--
		bs[i] = byte(v&0x7F) | 0x80
	}
	out.Write(bs[i:])
}
