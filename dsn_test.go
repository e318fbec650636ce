package courier

import "testing"

func TestResolveDSN(t *testing.T) {
	tests := []struct {
		name     string
		def      *DSN
		override *DSN
		mail     string
		rcpt     string
	}{
		{"none", nil, nil, "", " NOTIFY=NEVER"},
		{
			name: "session defaults",
			def:  &DSN{Ret: &DSNRet{Headers: true}, Notify: &DSNNotify{Failure: true, Delay: true}},
			mail: " RET=HDRS",
			rcpt: " NOTIFY=FAILURE,DELAY",
		},
		{
			name:     "override per field",
			def:      &DSN{Ret: &DSNRet{Headers: true}, Notify: &DSNNotify{Failure: true}},
			override: &DSN{Notify: &DSNNotify{Success: true}},
			mail:     " RET=HDRS",
			rcpt:     " NOTIFY=SUCCESS",
		},
		{
			name:     "notify never",
			override: &DSN{Notify: &DSNNotify{}},
			rcpt:     " NOTIFY=NEVER",
		},
		{
			name:     "envelope id only from override",
			def:      &DSN{EnvelopeID: "ignored"},
			override: &DSN{Ret: &DSNRet{Full: true}, EnvelopeID: "abc=1"},
			mail:     " RET=FULL ENVID=abc+3D1",
			rcpt:     " NOTIFY=NEVER",
		},
		{
			name: "session envelope id ignored",
			def:  &DSN{EnvelopeID: "ignored"},
			rcpt: " NOTIFY=NEVER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := resolveDSN(tt.def, tt.override)
			if got := p.mailParams(true); got != tt.mail {
				t.Errorf("mailParams = %q, want %q", got, tt.mail)
			}
			if got := p.rcptParams(true); got != tt.rcpt {
				t.Errorf("rcptParams = %q, want %q", got, tt.rcpt)
			}
			if p.mailParams(false) != "" || p.rcptParams(false) != "" {
				t.Error("parameters must be empty without server support")
			}
		})
	}
}

func TestXtext(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"QQ314159", "QQ314159"},
		{"a+b", "a+2Bb"},
		{"a=b", "a+3Db"},
		{"with space", "with+20space"},
		{"tab\there", "tab+09here"},
		{"é", "+C3+A9"},
		{"~!", "~!"},
	}
	for _, tt := range tests {
		if got := xtext(tt.in); got != tt.want {
			t.Errorf("xtext(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDSNClone(t *testing.T) {
	orig := &DSN{Ret: &DSNRet{Full: true}, Notify: &DSNNotify{Success: true}, EnvelopeID: "id"}
	c := orig.clone()
	c.Ret.Full = false
	c.Notify.Success = false
	if !orig.Ret.Full || !orig.Notify.Success {
		t.Error("clone shares state with the original")
	}
	var nilDSN *DSN
	if nilDSN.clone() != nil {
		t.Error("clone of nil should be nil")
	}
}
