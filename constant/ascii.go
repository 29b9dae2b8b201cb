package constant

// AsciiArtLogo is the application's banner shown in the root command help.
const AsciiArtLogo = `
              _               _
 _ __ ___  ___| | ___ __ _ ___| |_
| '__/ _ \/ _ \ |/ __/ _' / __| __|
| | |  __/  __/ | (_| (_| \__ \ |_
|_|  \___|\___|_|\___\__,_|___/\__|`
