// Package sanitize чистит пользовательский ввод: HTML-теги, угловые скобки, длина.
package sanitize

import (
	"regexp"
	"strings"
)

const (
	MaxText        = 1000
	MaxTitle       = 200
	MaxDescription = 5000
	MaxMessage     = 1000
	MaxGroupName   = 100
)

var (
	tagRegexp   = regexp.MustCompile(`<[^>]*>`)
	emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Text убирает теги и символы <>, обрезает пробелы и длину до max символов.
func Text(s string, max int) string {
	s = tagRegexp.ReplaceAllString(s, "")
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > max {
		s = string(r[:max])
	}
	return s
}

func Title(s string) string       { return Text(s, MaxTitle) }
func Description(s string) string { return Text(s, MaxDescription) }
func Message(s string) string     { return Text(s, MaxMessage) }
func GroupName(s string) string   { return Text(s, MaxGroupName) }

// Email приводит адрес к виду для сравнения и ключей: без пробелов, нижний регистр.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func ValidEmail(s string) bool {
	return emailRegexp.MatchString(strings.TrimSpace(s))
}

// Emails чистит список адресов и возвращает первый невалидный, если есть.
func Emails(list []string) (clean []string, bad string) {
	clean = make([]string, 0, len(list))
	for _, v := range list {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !ValidEmail(v) {
			return nil, v
		}
		clean = append(clean, v)
	}
	return clean, ""
}
