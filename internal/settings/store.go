package settings

import (
	"os"
	"path/filepath"
)

/*-------------------------------------------------------------------
 *
 * Name:	Store
 *
 * Purpose:	Factory and user copies of the persisted settings blob.
 *		The factory copy is a read-only YAML file shipped with
 *		the install; the user copy is a binary file rewritten
 *		atomically (write-temp, rename) so a crash mid-save never
 *		leaves a torn blob.
 *
 *--------------------------------------------------------------*/

// Store locates the factory-defaults and user-settings files.
type Store struct {
	FactoryPath string // YAML, read-only as shipped
	UserPath    string // WireSize-byte binary, read-write
}

// NewStore returns a Store rooted at dir, using the conventional file
// names "factory.yaml" and "user.bin".
func NewStore(dir string) Store {
	return Store{
		FactoryPath: filepath.Join(dir, "factory.yaml"),
		UserPath:    filepath.Join(dir, "user.bin"),
	}
}

// LoadFactory reads the factory defaults. If the file does not
// exist, the compiled-in Default() is returned so a fresh install
// always has usable settings.
func (s Store) LoadFactory() (Settings, error) {
	buf, err := os.ReadFile(s.FactoryPath)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	return FromYAML(buf)
}

// SaveFactory writes the factory defaults (used by provisioning
// tooling, not by the runtime dialogue).
func (s Store) SaveFactory(v Settings) error {
	buf, err := v.ToYAML()
	if err != nil {
		return err
	}
	return writeAtomic(s.FactoryPath, buf)
}

// LoadUser reads the current user settings, falling back to the
// factory defaults if no user copy has ever been saved - this is the
// dialogue's 'L' (reload user settings) command's read path.
func (s Store) LoadUser() (Settings, error) {
	buf, err := os.ReadFile(s.UserPath)
	if os.IsNotExist(err) {
		return s.LoadFactory()
	}
	if err != nil {
		return Settings{}, err
	}
	return Unmarshal(buf)
}

// SaveUser writes the current settings as the user copy - the
// dialogue's 'S' command. The write is atomic (temp file + rename)
// so a crash mid-write leaves either the old or the new contents,
// never a torn blob.
func (s Store) SaveUser(v Settings) error {
	wire := v.Marshal()
	return writeAtomic(s.UserPath, wire[:])
}

// ResetToFactory is the dialogue's 'R' command: reload factory
// defaults, then immediately save them as the user copy.
func (s Store) ResetToFactory() (Settings, error) {
	v, err := s.LoadFactory()
	if err != nil {
		return Settings{}, err
	}
	if err := s.SaveUser(v); err != nil {
		return Settings{}, err
	}
	return v, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
