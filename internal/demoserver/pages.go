package demoserver

import "strings"

// PageVersion is one layout of a page.
type PageVersion struct {
	HTML        string
	ContentType string
	Headers     map[string]string
}

// PageDefinition holds all versions of a single page.
type PageDefinition struct {
	Path        string
	Description string
	Versions    map[int]PageVersion
}

// GetAllPages returns all demo page definitions.
func GetAllPages() []PageDefinition {
	return []PageDefinition{
		getHomePage(),
		getCreatePage(),
	}
}

func getHomePage() PageDefinition {
	return PageDefinition{
		Path:        "/",
		Description: "Landing page linking to the create form",
		Versions: map[int]PageVersion{
			1: {HTML: `<!DOCTYPE html>
<html>
<head><title>Sandbox launchpad</title></head>
<body>
    <h1>Sandbox launchpad</h1>
    <p>Nothing here touches a real chain.</p>
    <a href="/create">Start a new token</a> |
    <a href="/demo/control">Control panel</a>
</body>
</html>`},
		},
	}
}

// createForm is shared by both create page layouts. The submit button is
// replaced by the confirmation dialog on the first click so that the second
// click finds the dialog's button first.
const createForm = `<!DOCTYPE html>
<html>
<head>
    <title>Sandbox launchpad - new token</title>
    <style>
        body { font-family: system-ui, sans-serif; max-width: 640px; margin: 0 auto; padding: 20px; }
        label { display: block; margin-top: 10px; }
        input, textarea { width: 100%; }
        #dialog { border: 1px solid #333; padding: 16px; margin-top: 16px; }
    </style>
</head>
<body>
    <h1>Launch a new token</h1>
    <form id="create-form" onsubmit="return false">
        <label>Name <input name="name" type="text"></label>
        <label>Ticker <input name="ticker" type="text"></label>
        <label>Description <textarea name="description"></textarea></label>
        <label>Image <input name="image" type="file" accept="image/*"></label>
        <label>Website <input name="website" type="text"></label>
        <label>Twitter <input name="twitter" type="text"></label>
        <label>Telegram <input name="telegram" type="text"></label>
        <button type="button" id="open">Create coin</button>
    </form>
    <div id="slot"></div>
    <script>
        function field(name) {
            return document.querySelector('[name="' + name + '"]').value;
        }
        document.getElementById('open').addEventListener('click', function (ev) {
            ev.target.remove();
            openDialog();
        });
    </script>
    <!-- dialog script -->
</body>
</html>`

const confirmScript = `<script>
        function openDialog() {
            var slot = document.getElementById('slot');
            slot.innerHTML =
                '<div id="dialog">' +
                '<p>Choose how many tokens to buy first</p>' +
                '<input name="amount" type="text" value="0">' +
                '<button type="button" id="confirm">Create coin</button>' +
                '</div>';
            document.getElementById('confirm').addEventListener('click', submitCoin);
        }
        function submitCoin(ev) {
            ev.target.disabled = true;
            var file = document.querySelector('input[name="image"]').files[0];
            var body = {
                name: field('name'),
                ticker: field('ticker'),
                description: field('description'),
                image: file ? file.name : '',
                website: field('website'),
                twitter: field('twitter'),
                telegram: field('telegram'),
                amount: field('amount')
            };
            fetch('/api/create', {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify(body)
            })
            .then(function (r) { return r.json(); })
            .then(function (data) {
                var out = document.createElement('div');
                if (data.error) {
                    out.textContent = 'Error: ' + data.error;
                } else {
                    out.innerHTML = '<span>Transaction hash</span><div id="tx"></div>';
                    out.querySelector('#tx').textContent = data.transaction_hash;
                }
                document.getElementById('dialog').appendChild(out);
            });
        }
    </script>`

const outageScript = `<script>
        function openDialog() {
            document.getElementById('slot').textContent = 'Launches are paused. Try again later.';
        }
    </script>`

func getCreatePage() PageDefinition {
	return PageDefinition{
		Path:        "/create",
		Description: "Token creation form with a two-step submit",
		Versions: map[int]PageVersion{
			1: {HTML: createPage(confirmScript)},
			// The confirmation dialog never opens, so a run fails at the amount step.
			2: {HTML: createPage(outageScript)},
		},
	}
}

func createPage(script string) string {
	return strings.Replace(createForm, "<!-- dialog script -->", script, 1)
}
