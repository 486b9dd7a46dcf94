package constant

const (
	DEFAULT_LIMIT = 20
	MAX_LIMIT     = 100

	MAX_FILE_SIZE = 4 * 1024 * 1024 // 4MB

	INVITE_CODE_LENGTH = 8
	MAX_INVITE_USES    = 100

	MIN_USERNAME_LENGTH = 3
	MAX_USERNAME_LENGTH = 32
	MIN_PASSWORD_LENGTH = 8
	MAX_PASSWORD_LENGTH = 64
)
