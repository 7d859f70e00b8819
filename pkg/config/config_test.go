package config

import (
    "os"
    "path/filepath"
    "testing"
)

func TestDefaults(t *testing.T) {
    cfg, err := Load("")
    if err != nil {
        t.Fatalf("load defaults: %v", err)
    }
    if cfg.Mesh.TTL != 4 || cfg.Mesh.DedupCapacity != 20 || cfg.Mesh.RouteTimeoutMS != 60000 {
        t.Fatalf("mesh defaults: %+v", cfg.Mesh)
    }
    min, max := cfg.Mesh.HelloWindow()
    if min.Seconds() != 15 || max.Seconds() != 25 {
        t.Fatalf("hello window: %v..%v", min, max)
    }
    if cfg.Radio.BasePort != 42100 {
        t.Fatalf("radio defaults: %+v", cfg.Radio)
    }
}

func TestLoadFromFile(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "radiomesh.yaml")
    yaml := `
node_id: 77
group: 3
log:
  level: debug
mesh:
  ttl: 5
  hello_min_ms: 1000
  hello_max_ms: 2000
`
    if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
        t.Fatal(err)
    }
    cfg, err := Load(path)
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if cfg.NodeID != 77 || cfg.Group != 3 || cfg.Log.Level != "debug" || cfg.Mesh.TTL != 5 {
        t.Fatalf("cfg: %+v", cfg)
    }
    // untouched keys keep their defaults
    if cfg.Mesh.DedupCapacity != 20 {
        t.Fatalf("dedup capacity default lost: %d", cfg.Mesh.DedupCapacity)
    }
}

func TestValidateRejectsBadValues(t *testing.T) {
    dir := t.TempDir()
    cases := map[string]string{
        "bad_level": "log:\n  level: loud\n",
        "bad_ttl":   "mesh:\n  ttl: 9\n",
        "bad_hello": "mesh:\n  hello_min_ms: 2000\n  hello_max_ms: 1000\n",
        "bad_port":  "radio:\n  base_port: 65530\n",
    }
    for name, yaml := range cases {
        path := filepath.Join(dir, name+".yaml")
        if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
            t.Fatal(err)
        }
        if _, err := Load(path); err == nil {
            t.Fatalf("%s: accepted", name)
        }
    }
}
