package cli

import (
	"fmt"
	"os"
)

func HelpText(program string) string {
	if program == "" {
		program = "unsplit"
	}
	return fmt.Sprintf(`%s - extract archives split across numbered part files

Usage:
  %s -x [options] <archive>...
  %s -t [options] <archive>...
  %s [bundled flags] <archive>...   (example: %s xvC out backup.zip.001)

An <archive> is one of:
  name.001, name.7z.001, name.part1   first part; numbered siblings are found
  'name.z*'                            glob, ordered by numeric suffix
  a.001%[6]sa.002%[6]sa.003            explicit part list, used in the given order
  name.zip                             a single file

Modes:
  -x                Extract archives
  -t                List archive contents

Main Options:
  -C <dir>          Extract into <dir> (must exist; default .)
  -v                Verbose output
  -h, --help        Show this help message
  --format <auto|zip|7z|rar|tar>
                    Container format; auto-detected by default
  --chunk-size <size>
                    Decode buffer size (default 32KiB)
  --strip-components <count>
                    Remove <count> leading path elements when extracting

Conflicts & Errors:
  --overwrite <ask|always|never>
                    What to do when a target file exists (default ask)
  -k, --keep-old-files
                    Same as --overwrite never
  --on-error <ask|continue|abort>
                    Whether to go on with the next archive after a failure
  --keep-going      Same as --on-error continue
  --remove-parts    Delete an archive's part files after it extracts cleanly

Compression (tar payloads):
  -z                gzip
  -j                bzip2
  -J                xz
  --zstd            zstd
  --lz4             lz4
  (auto-detects by magic bytes, then file extension)

Ownership & Permissions:
  --same-owner
  --no-same-owner
  --same-permissions
  --no-same-permissions
  --xattrs          Apply extended attributes stored in tar archives
  --unsafe-links    Allow symlinks pointing outside the output directory

Selection:
  --include <pattern>
  --exclude <pattern>
  --exclude-from <file>

Logging & Config:
  --log-level <debug|info|warn|error>
  --log-file <path> Also write JSON logs to a rotating file
  --env-file <path> Load UNSPLIT_* defaults from a dotenv file (default .env)
`, program, program, program, program, program, string(os.PathListSeparator))
}
