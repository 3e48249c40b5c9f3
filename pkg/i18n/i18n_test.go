package i18n

import (
	"reflect"
	"testing"
)

func TestGetFallsBackToKey(t *testing.T) {
	SetLanguage(LangEN)
	if got := Get("BotShutDown"); got != "The bot was shut down by user" {
		t.Fatalf("Get(BotShutDown)=%q", got)
	}
	if got := Get("NoSuchKey"); got != "NoSuchKey" {
		t.Fatalf("Get(NoSuchKey)=%q, expected the key", got)
	}
}

func TestEveryMessageTranslated(t *testing.T) {
	for _, m := range []Messages{messagesEN, messagesZH} {
		v := reflect.ValueOf(m)
		for i := 0; i < v.NumField(); i++ {
			if v.Field(i).String() == "" {
				t.Fatalf("%s is empty", v.Type().Field(i).Name)
			}
		}
	}
}

func TestSetLanguage(t *testing.T) {
	SetLanguage(LangZH)
	defer SetLanguage(LangEN)
	if GetLanguage() != LangZH || M().BotShutDown != messagesZH.BotShutDown {
		t.Fatalf("language=%s, expected zh messages", GetLanguage())
	}
}
