// Package keychain implements ports.SecurityBackend.
//
//   - SecurityCLI drives the macOS security tool against one explicitly named
//     keychain file. It never edits the user's keychain search list or the
//     default keychain; xcodebuild is pointed at the file through
//     OTHER_CODE_SIGN_FLAGS instead.
//   - Directory is a portable container: a JSON manifest guarded by a bcrypt
//     password hash. It validates every imported p12 and cer so a broken
//     identity is caught on hosts without the security tool (CI on Linux,
//     tests).
package keychain
